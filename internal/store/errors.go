package store

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when no row exists at an address, or when a
	// chain has been terminated by a delete.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write names a predecessor that already
	// has a successor.
	ErrConflict = errors.New("revision is not the chain head")

	// ErrDuplicate is returned when a write would reuse a unique key: a
	// create header's identity, or a grant's id or secret.
	ErrDuplicate = errors.New("already exists")
)

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
