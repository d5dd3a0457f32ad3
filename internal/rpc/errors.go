package rpc

import (
	"errors"
	"fmt"
)

// Kind categorizes cross-partition call failures.
type Kind string

const (
	// KindNotConfigured indicates no claim or module is configured for the call.
	KindNotConfigured Kind = "NOT_CONFIGURED"

	// KindUnauthorized indicates the callee rejected the capability.
	KindUnauthorized Kind = "UNAUTHORIZED"

	// KindNetwork indicates a transport failure or a failure inside the callee.
	KindNetwork Kind = "NETWORK_ERROR"

	// KindDecode indicates a payload could not be encoded or decoded.
	KindDecode Kind = "DECODE"
)

// CrossCellError reports a failed cross-partition or cross-module call.
type CrossCellError struct {
	Kind Kind

	// Caller and Method are set for NotConfigured.
	Caller string
	Method string

	// Partition, Module, Function and Principal are set for Unauthorized.
	Partition string
	Module    string
	Function  string
	Principal string

	// Code is the error code raised inside the callee, if any.
	Code string

	Message string
	Err     error
}

// Coded is implemented by errors that carry a machine-readable code which
// should survive a trip through a Response.
type Coded interface {
	ErrorCode() string
}

// Error implements the error interface.
func (e *CrossCellError) Error() string {
	switch e.Kind {
	case KindNotConfigured:
		return fmt.Sprintf("%s: no target configured for %s from %s", e.Kind, e.Method, e.Caller)
	case KindUnauthorized:
		return fmt.Sprintf("%s: %s may not call %s.%s on %s", e.Kind, e.Principal, e.Module, e.Function, e.Partition)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CrossCellError) Unwrap() error { return e.Err }

// ErrorCode returns the callee's error code, or "" if it raised none.
func (e *CrossCellError) ErrorCode() string { return e.Code }

func hasKind(err error, kind Kind) bool {
	var ce *CrossCellError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// IsNotConfigured returns true if err is a NOT_CONFIGURED call error.
func IsNotConfigured(err error) bool { return hasKind(err, KindNotConfigured) }

// IsUnauthorized returns true if err is an UNAUTHORIZED call error.
func IsUnauthorized(err error) bool { return hasKind(err, KindUnauthorized) }

// IsNetwork returns true if err is a NETWORK_ERROR call error.
func IsNetwork(err error) bool { return hasKind(err, KindNetwork) }

// IsDecode returns true if err is a DECODE call error.
func IsDecode(err error) bool { return hasKind(err, KindDecode) }

// NotConfigured creates a NOT_CONFIGURED error.
func NotConfigured(caller, method string) *CrossCellError {
	return &CrossCellError{Kind: KindNotConfigured, Caller: caller, Method: method}
}

// Unauthorized creates an UNAUTHORIZED error.
func Unauthorized(partition, module, function, principal string) *CrossCellError {
	return &CrossCellError{
		Kind:      KindUnauthorized,
		Partition: partition,
		Module:    module,
		Function:  function,
		Principal: principal,
	}
}

// NetworkError creates a NETWORK_ERROR error.
func NetworkError(message string, err error) *CrossCellError {
	return &CrossCellError{Kind: KindNetwork, Message: message, Err: err}
}

func decodeError(message string, err error) *CrossCellError {
	return &CrossCellError{Kind: KindDecode, Message: message, Err: err}
}
