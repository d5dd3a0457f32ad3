package ir

import (
	"encoding/hex"
	"fmt"
)

// IdentityAddress is the stable handle of one logical record: the entry hash
// of its first version. It never changes across updates and is the join key
// for every index edge.
type IdentityAddress string

// RevisionPointer addresses one header in a record's revision chain.
// A new pointer is minted by every create, update and delete.
type RevisionPointer string

// EntryHash addresses stored entry content.
type EntryHash string

// AddressLen is the hex length of every content address (SHA-256).
const AddressLen = 64

// Bytes returns the raw hash bytes of the identity.
func (a IdentityAddress) Bytes() ([]byte, error) {
	return hex.DecodeString(string(a))
}

func (a IdentityAddress) String() string { return string(a) }

func (r RevisionPointer) String() string { return string(r) }

// Short returns an abbreviated form for logs.
func (a IdentityAddress) Short() string {
	if len(a) <= 12 {
		return string(a)
	}
	return string(a[:12])
}

// ParseIdentity validates s as a content address.
func ParseIdentity(s string) (IdentityAddress, error) {
	if err := validateAddress(s); err != nil {
		return "", fmt.Errorf("identity address: %w", err)
	}
	return IdentityAddress(s), nil
}

// ParseRevision validates s as a content address.
func ParseRevision(s string) (RevisionPointer, error) {
	if err := validateAddress(s); err != nil {
		return "", fmt.Errorf("revision pointer: %w", err)
	}
	return RevisionPointer(s), nil
}

func validateAddress(s string) error {
	if len(s) != AddressLen {
		return fmt.Errorf("%q has length %d, want %d", s, len(s), AddressLen)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return fmt.Errorf("%q is not hex: %w", s, err)
	}
	return nil
}
