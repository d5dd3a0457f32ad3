package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/dhtrecords/internal/ir"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const headerColumns = `hash, action, entry_type, entry_hash, prev_header, identity, seq`

// Header retrieves a header by its revision pointer.
// Returns ErrNotFound if no such header exists.
func (s *Store) Header(ctx context.Context, hash ir.RevisionPointer) (ir.Header, error) {
	return headerByHash(ctx, s.db, hash)
}

// Resolve maps an address that may be either an identity or a revision
// pointer to the header it names: the create header for an identity, the
// header itself for a revision.
// Returns ErrNotFound if the address is neither.
func (s *Store) Resolve(ctx context.Context, address string) (ir.Header, error) {
	h, err := headerByHash(ctx, s.db, ir.RevisionPointer(address))
	if err == nil {
		return h, nil
	}
	if err != ErrNotFound {
		return ir.Header{}, err
	}
	return createHeader(ctx, s.db, ir.IdentityAddress(address))
}

// Head follows the chain forward from h to its most recent header.
// The returned header may be a delete.
func (s *Store) Head(ctx context.Context, h ir.Header) (ir.Header, error) {
	return followChain(ctx, s.db, h)
}

// Entry returns the entry type and canonical payload stored at hash.
func (s *Store) Entry(ctx context.Context, hash ir.EntryHash) (string, []byte, error) {
	var entryType, payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT entry_type, payload FROM entries WHERE hash = ?
	`, string(hash)).Scan(&entryType, &payload)
	if isNoRows(err) {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("read entry: %w", err)
	}
	return entryType, []byte(payload), nil
}

// Payload returns the entry type and payload of the version written by the
// header at revision, encoded exactly as its author wrote it.
// Returns ErrNotFound if revision is unknown or is a delete.
func (s *Store) Payload(ctx context.Context, revision ir.RevisionPointer) (string, []byte, error) {
	var entryType, payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT e.entry_type, COALESCE(h.payload, e.payload)
		FROM headers h
		JOIN entries e ON e.hash = h.entry_hash
		WHERE h.hash = ?
	`, string(revision)).Scan(&entryType, &payload)
	if isNoRows(err) {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("read payload: %w", err)
	}
	return entryType, []byte(payload), nil
}

// History returns every header of the record identified by identity,
// oldest first.
func (s *Store) History(ctx context.Context, identity ir.IdentityAddress) ([]ir.Header, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+headerColumns+`
		FROM headers
		WHERE identity = ?
		ORDER BY seq ASC, hash COLLATE BINARY ASC
	`, string(identity))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	headers := []ir.Header{}
	for rows.Next() {
		h, err := scanHeader(rows)
		if err != nil {
			return nil, err
		}
		headers = append(headers, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	if len(headers) == 0 {
		return nil, ErrNotFound
	}
	return headers, nil
}

func headerByHash(ctx context.Context, q queryer, hash ir.RevisionPointer) (ir.Header, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+headerColumns+` FROM headers WHERE hash = ?
	`, string(hash))
	return scanHeaderRow(row)
}

func createHeader(ctx context.Context, q queryer, identity ir.IdentityAddress) (ir.Header, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+headerColumns+` FROM headers WHERE identity = ? AND action = 'create'
	`, string(identity))
	return scanHeaderRow(row)
}

// successor returns the header superseding hash, or nil at the chain head.
func successor(ctx context.Context, q queryer, hash ir.RevisionPointer) (*ir.Header, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+headerColumns+` FROM headers WHERE prev_header = ?
	`, string(hash))
	h, err := scanHeaderRow(row)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func followChain(ctx context.Context, q queryer, h ir.Header) (ir.Header, error) {
	for {
		next, err := successor(ctx, q, h.Hash)
		if err != nil {
			return ir.Header{}, err
		}
		if next == nil {
			return h, nil
		}
		h = *next
	}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanHeader(r rowScanner) (ir.Header, error) {
	var h ir.Header
	var hash, action, identity string
	var entryHash, prev sql.NullString
	err := r.Scan(&hash, &action, &h.EntryType, &entryHash, &prev, &identity, &h.Seq)
	if err != nil {
		return ir.Header{}, err
	}
	h.Hash = ir.RevisionPointer(hash)
	h.Action = ir.Action(action)
	h.EntryHash = ir.EntryHash(entryHash.String)
	h.Prev = ir.RevisionPointer(prev.String)
	h.Identity = ir.IdentityAddress(identity)
	return h, nil
}

func scanHeaderRow(row *sql.Row) (ir.Header, error) {
	h, err := scanHeader(row)
	if isNoRows(err) {
		return ir.Header{}, ErrNotFound
	}
	if err != nil {
		return ir.Header{}, fmt.Errorf("scan header: %w", err)
	}
	return h, nil
}
