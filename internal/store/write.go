package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/dhtrecords/internal/ir"
)

// Content is the payload of one version. Canonical determines the entry hash
// and is what entries holds; Raw is the author's own encoding, kept on the
// header and returned by Payload.
type Content struct {
	Canonical []byte
	Raw       []byte
}

// AppendCreate stores the first version of a record.
//
// The identity of the new record is the entry hash of this first version,
// salted with the header's seq so equal payloads yield distinct records. When
// anchor is non-empty a link anchor -[anchorType]-> identity is written in the
// same transaction, which is how records become reachable from a root index.
func (s *Store) AppendCreate(ctx context.Context, entryType string, c Content, anchor ir.IdentityAddress, anchorType string) (ir.Header, error) {
	seq := s.clock.Next()
	entryHash, err := ir.CreateEntryAddress(entryType, c.Canonical, seq)
	if err != nil {
		return ir.Header{}, fmt.Errorf("append create: %w", err)
	}

	h := ir.Header{
		Action:    ir.ActionCreate,
		EntryType: entryType,
		EntryHash: entryHash,
		Identity:  ir.IdentityAddress(entryHash),
		Seq:       seq,
	}
	if h.Hash, err = ir.HeaderAddress(h); err != nil {
		return ir.Header{}, fmt.Errorf("append create: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertEntry(ctx, tx, entryHash, entryType, c.Canonical); err != nil {
			return err
		}
		if err := insertHeader(ctx, tx, h, c.Raw); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}
		if anchor != "" {
			if _, err := insertLink(ctx, tx, LinkSpec{Base: anchor, Target: h.Identity, Type: anchorType}, s.clock.Next()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ir.Header{}, fmt.Errorf("append create: %w", err)
	}

	s.logger.Debug("record created",
		zap.String("entry_type", entryType),
		zap.String("identity", h.Identity.Short()),
		zap.Int64("seq", h.Seq))
	return h, nil
}

// AppendUpdate appends a new version chained to prior.
//
// Returns ErrNotFound if prior does not exist or belongs to a deleted chain,
// and ErrConflict if prior already has a successor. Two writers racing on the
// same prior cannot both succeed: the UNIQUE index on prev_header rejects the
// second insert.
func (s *Store) AppendUpdate(ctx context.Context, prior ir.RevisionPointer, c Content) (ir.Header, ir.Header, error) {
	var h, prev ir.Header

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		prev, err = headerByHash(ctx, tx, prior)
		if err != nil {
			return err
		}
		if prev.Action == ir.ActionDelete {
			return ErrNotFound
		}
		next, err := successor(ctx, tx, prior)
		if err != nil {
			return err
		}
		if next != nil {
			head, err := followChain(ctx, tx, *next)
			if err != nil {
				return err
			}
			if head.Action == ir.ActionDelete {
				return ErrNotFound
			}
			return ErrConflict
		}

		entryHash, err := ir.EntryAddress(prev.EntryType, c.Canonical)
		if err != nil {
			return err
		}
		h = ir.Header{
			Action:    ir.ActionUpdate,
			EntryType: prev.EntryType,
			EntryHash: entryHash,
			Prev:      prior,
			Identity:  prev.Identity,
			Seq:       s.clock.Next(),
		}
		if h.Hash, err = ir.HeaderAddress(h); err != nil {
			return err
		}

		if err := insertEntry(ctx, tx, entryHash, prev.EntryType, c.Canonical); err != nil {
			return err
		}
		if err := insertHeader(ctx, tx, h, c.Raw); err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		return ir.Header{}, ir.Header{}, fmt.Errorf("append update: %w", err)
	}

	s.logger.Debug("record updated",
		zap.String("entry_type", h.EntryType),
		zap.String("identity", h.Identity.Short()),
		zap.Int64("seq", h.Seq))
	return h, prev, nil
}

// AppendDelete terminates the chain containing revision.
//
// Returns ErrNotFound if revision does not exist or its chain is already
// deleted, and ErrConflict if revision has been superseded by an update.
func (s *Store) AppendDelete(ctx context.Context, revision ir.RevisionPointer) (ir.Header, error) {
	var h ir.Header

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		target, err := headerByHash(ctx, tx, revision)
		if err != nil {
			return err
		}
		if target.Action == ir.ActionDelete {
			return ErrNotFound
		}
		head, err := followChain(ctx, tx, target)
		if err != nil {
			return err
		}
		if head.Action == ir.ActionDelete {
			return ErrNotFound
		}
		if head.Hash != revision {
			return ErrConflict
		}

		h = ir.Header{
			Action:    ir.ActionDelete,
			EntryType: target.EntryType,
			Prev:      revision,
			Identity:  target.Identity,
			Seq:       s.clock.Next(),
		}
		if h.Hash, err = ir.HeaderAddress(h); err != nil {
			return err
		}
		if err := insertHeader(ctx, tx, h, nil); err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		return ir.Header{}, fmt.Errorf("append delete: %w", err)
	}

	s.logger.Debug("record deleted",
		zap.String("entry_type", h.EntryType),
		zap.String("identity", h.Identity.Short()),
		zap.Int64("seq", h.Seq))
	return h, nil
}

// insertEntry stores entry content. Identical content is stored once;
// ON CONFLICT(hash) DO NOTHING makes rewrites of an earlier version a no-op.
func insertEntry(ctx context.Context, tx *sql.Tx, hash ir.EntryHash, entryType string, payload []byte) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO entries (hash, entry_type, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`, string(hash), entryType, string(payload))
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

func insertHeader(ctx context.Context, tx *sql.Tx, h ir.Header, payload []byte) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO headers (hash, action, entry_type, entry_hash, prev_header, identity, seq, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(h.Hash),
		string(h.Action),
		h.EntryType,
		nullable(string(h.EntryHash)),
		nullable(string(h.Prev)),
		string(h.Identity),
		h.Seq,
		nullable(string(payload)),
	)
	if err != nil {
		return fmt.Errorf("insert header: %w", err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isNoRows reports whether err is sql.ErrNoRows.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
