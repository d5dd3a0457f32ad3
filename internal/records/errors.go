package records

import (
	"errors"
	"fmt"

	"github.com/roach88/dhtrecords/internal/store"
)

// IntegrityError reports a failure reading or writing a record or an index
// edge. Code carries the kind; callers should test it with the Is* helpers,
// which see through wrapping.
type IntegrityError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Address is the identity or revision the operation was addressed to.
	Address string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes integrity errors.
type ErrorCode string

const (
	// ErrCodeEntryNotFound indicates nothing live exists at the address.
	ErrCodeEntryNotFound ErrorCode = "ENTRY_NOT_FOUND"

	// ErrCodeDeserialization indicates stored bytes do not decode into the
	// expected entry type.
	ErrCodeDeserialization ErrorCode = "DESERIALIZATION"

	// ErrCodeRevisionMismatch indicates the supplied revision is not the
	// current head of its chain.
	ErrCodeRevisionMismatch ErrorCode = "REVISION_MISMATCH"

	// ErrCodeRemoteRequest indicates the remote half of an operation failed.
	ErrCodeRemoteRequest ErrorCode = "REMOTE_REQUEST"

	// ErrCodeIntegrity indicates the store rejected the write.
	ErrCodeIntegrity ErrorCode = "INTEGRITY"
)

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Address != "" {
		msg += fmt.Sprintf(" (address=%s)", e.Address)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// ErrorCode returns Code as a string, which lets the code travel with a
// failed cross-partition response.
func (e *IntegrityError) ErrorCode() string { return string(e.Code) }

// hasCode matches a local IntegrityError first, then any error that
// carries a code from another partition.
func hasCode(err error, code ErrorCode) bool {
	var ie *IntegrityError
	if errors.As(err, &ie) {
		return ie.Code == code
	}
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		return coded.ErrorCode() == string(code)
	}
	return false
}

// IsNotFound returns true if err is an ENTRY_NOT_FOUND error.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeEntryNotFound) }

// IsDeserialization returns true if err is a DESERIALIZATION error.
func IsDeserialization(err error) bool { return hasCode(err, ErrCodeDeserialization) }

// IsRevisionMismatch returns true if err is a REVISION_MISMATCH error.
func IsRevisionMismatch(err error) bool { return hasCode(err, ErrCodeRevisionMismatch) }

// IsRemoteRequest returns true if err is a REMOTE_REQUEST error.
func IsRemoteRequest(err error) bool { return hasCode(err, ErrCodeRemoteRequest) }

// IsIntegrity returns true if err is an INTEGRITY error.
func IsIntegrity(err error) bool { return hasCode(err, ErrCodeIntegrity) }

// NewNotFoundError creates an ENTRY_NOT_FOUND error for address.
func NewNotFoundError(address string) *IntegrityError {
	return &IntegrityError{
		Code:    ErrCodeEntryNotFound,
		Message: "no live entry at address",
		Address: address,
	}
}

// NewRemoteRequestError wraps the failure of a call made on behalf of a
// record or index operation in another partition.
func NewRemoteRequestError(address string, err error) *IntegrityError {
	return &IntegrityError{
		Code:    ErrCodeRemoteRequest,
		Message: "remote request failed",
		Address: address,
		Err:     err,
	}
}

func newDeserializationError(address, message string, err error) *IntegrityError {
	return &IntegrityError{
		Code:    ErrCodeDeserialization,
		Message: message,
		Address: address,
		Err:     err,
	}
}

func newIntegrityError(address, message string, err error) *IntegrityError {
	return &IntegrityError{
		Code:    ErrCodeIntegrity,
		Message: message,
		Address: address,
		Err:     err,
	}
}

// fromStore classifies a store error against address.
func fromStore(address string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return &IntegrityError{Code: ErrCodeEntryNotFound, Message: "no live entry at address", Address: address, Err: err}
	case errors.Is(err, store.ErrConflict):
		return &IntegrityError{Code: ErrCodeRevisionMismatch, Message: "revision is not the current head", Address: address, Err: err}
	case errors.Is(err, store.ErrDuplicate):
		return newIntegrityError(address, "record already exists", err)
	default:
		return newIntegrityError(address, "store rejected the operation", err)
	}
}
