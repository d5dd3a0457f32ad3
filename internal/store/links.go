package store

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/dhtrecords/internal/ir"
)

// LinkSpec names one edge: base -[Type/Tag]-> target.
type LinkSpec struct {
	Base   ir.IdentityAddress
	Target ir.IdentityAddress
	Type   string
	Tag    string
}

// LinkChanges reports what ApplyLinks actually wrote.
type LinkChanges struct {
	Added   []ir.Link // newly appended links
	Removed []ir.Link // links that received a tombstone
}

// ApplyLinks appends and tombstones links in one transaction.
//
// Adding a link that is already live is a no-op, as is removing one that is
// not; the returned LinkChanges lists only rows actually written. Removals are
// applied before additions so a spec present in both lists ends up live.
func (s *Store) ApplyLinks(ctx context.Context, add, remove []LinkSpec) (LinkChanges, error) {
	var changes LinkChanges

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, spec := range remove {
			live, err := liveLinks(ctx, tx, spec)
			if err != nil {
				return err
			}
			for _, l := range live {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO link_tombstones (link_id, seq)
					VALUES (?, ?)
					ON CONFLICT(link_id) DO NOTHING
				`, l.ID, s.clock.Next()); err != nil {
					return fmt.Errorf("insert tombstone: %w", err)
				}
				changes.Removed = append(changes.Removed, l)
			}
		}

		for _, spec := range add {
			live, err := liveLinks(ctx, tx, spec)
			if err != nil {
				return err
			}
			if len(live) > 0 {
				continue
			}
			l, err := insertLink(ctx, tx, spec, s.clock.Next())
			if err != nil {
				return err
			}
			changes.Added = append(changes.Added, l)
		}
		return nil
	})
	if err != nil {
		return LinkChanges{}, fmt.Errorf("apply links: %w", err)
	}

	if len(changes.Added)+len(changes.Removed) > 0 {
		s.logger.Debug("links applied",
			zap.Int("added", len(changes.Added)),
			zap.Int("removed", len(changes.Removed)))
	}
	return changes, nil
}

// Links returns live links from base with the given type and tag, in
// append order (seq ASC, id ASC).
func (s *Store) Links(ctx context.Context, base ir.IdentityAddress, linkType, tag string) ([]ir.Link, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.base, l.target, l.link_type, l.tag, l.seq
		FROM links l
		LEFT JOIN link_tombstones t ON t.link_id = l.id
		WHERE l.base = ? AND l.link_type = ? AND l.tag = ? AND t.link_id IS NULL
		ORDER BY l.seq ASC, l.id ASC
	`, string(base), linkType, tag)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	return collectLinks(rows)
}

// Backlinks returns live links of the given type pointing at target,
// in append order.
func (s *Store) Backlinks(ctx context.Context, target ir.IdentityAddress, linkType string) ([]ir.Link, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.base, l.target, l.link_type, l.tag, l.seq
		FROM links l
		LEFT JOIN link_tombstones t ON t.link_id = l.id
		WHERE l.target = ? AND l.link_type = ? AND t.link_id IS NULL
		ORDER BY l.seq ASC, l.id ASC
	`, string(target), linkType)
	if err != nil {
		return nil, fmt.Errorf("query backlinks: %w", err)
	}
	return collectLinks(rows)
}

func liveLinks(ctx context.Context, q queryer, spec LinkSpec) ([]ir.Link, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT l.id, l.base, l.target, l.link_type, l.tag, l.seq
		FROM links l
		LEFT JOIN link_tombstones t ON t.link_id = l.id
		WHERE l.base = ? AND l.target = ? AND l.link_type = ? AND l.tag = ? AND t.link_id IS NULL
		ORDER BY l.seq ASC, l.id ASC
	`, string(spec.Base), string(spec.Target), spec.Type, spec.Tag)
	if err != nil {
		return nil, fmt.Errorf("query live links: %w", err)
	}
	return collectLinks(rows)
}

func insertLink(ctx context.Context, tx *sql.Tx, spec LinkSpec, seq int64) (ir.Link, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO links (base, target, link_type, tag, seq)
		VALUES (?, ?, ?, ?, ?)
	`, string(spec.Base), string(spec.Target), spec.Type, spec.Tag, seq)
	if err != nil {
		return ir.Link{}, fmt.Errorf("insert link: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ir.Link{}, fmt.Errorf("insert link: last insert id: %w", err)
	}
	return ir.Link{
		ID:     id,
		Base:   spec.Base,
		Target: spec.Target,
		Type:   spec.Type,
		Tag:    spec.Tag,
		Seq:    seq,
	}, nil
}

func collectLinks(rows *sql.Rows) ([]ir.Link, error) {
	defer rows.Close()

	links := []ir.Link{}
	for rows.Next() {
		var l ir.Link
		var base, target string
		if err := rows.Scan(&l.ID, &base, &target, &l.Type, &l.Tag, &l.Seq); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		l.Base = ir.IdentityAddress(base)
		l.Target = ir.IdentityAddress(target)
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return links, nil
}
