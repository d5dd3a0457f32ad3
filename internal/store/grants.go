package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/dhtrecords/internal/ir"
)

// PutGrant records a capability grant issued by this partition.
// The grant's Seq is assigned here. Returns ErrDuplicate if the id or secret
// is already in use.
func (s *Store) PutGrant(ctx context.Context, g ir.Grant) (ir.Grant, error) {
	functions, err := marshalFunctions(g.Functions)
	if err != nil {
		return ir.Grant{}, fmt.Errorf("put grant: %w", err)
	}
	g.Seq = s.clock.Next()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cap_grants (id, grantor, secret, functions, revoked, seq)
		VALUES (?, ?, ?, ?, ?, ?)
	`, g.ID, g.Grantor, g.Secret, functions, g.Revoked, g.Seq)
	if isUniqueViolation(err) {
		return ir.Grant{}, fmt.Errorf("put grant: %w", ErrDuplicate)
	}
	if err != nil {
		return ir.Grant{}, fmt.Errorf("put grant: %w", err)
	}

	s.logger.Info("capability granted", zap.String("grant_id", g.ID), zap.Strings("functions", g.Functions))
	g.Functions, _ = unmarshalFunctions(functions)
	return g, nil
}

// GrantBySecret returns the grant holding secret, revoked or not.
// Returns ErrNotFound if none exists.
func (s *Store) GrantBySecret(ctx context.Context, secret string) (ir.Grant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, grantor, secret, functions, revoked, seq
		FROM cap_grants WHERE secret = ?
	`, secret)
	return scanGrant(row)
}

// RevokeGrant marks a grant revoked. Claims presenting its secret stop
// validating immediately. Returns ErrNotFound for an unknown id.
func (s *Store) RevokeGrant(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE cap_grants SET revoked = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("revoke grant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke grant: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("revoke grant %s: %w", id, ErrNotFound)
	}
	s.logger.Info("capability revoked", zap.String("grant_id", id))
	return nil
}

// Grants lists every grant in issue order.
func (s *Store) Grants(ctx context.Context) ([]ir.Grant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, grantor, secret, functions, revoked, seq
		FROM cap_grants ORDER BY seq ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query grants: %w", err)
	}
	defer rows.Close()

	grants := []ir.Grant{}
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}
	return grants, nil
}

// PutClaim stores (or replaces) the claim used to call permission on partition.
func (s *Store) PutClaim(ctx context.Context, c ir.Claim) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cap_claims (partition, permission, grantor, secret, module, function, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(partition, permission) DO UPDATE SET
			grantor = excluded.grantor,
			secret = excluded.secret,
			module = excluded.module,
			function = excluded.function,
			seq = excluded.seq
	`, c.Partition, c.Permission, c.Grantor, c.Secret, c.Module, c.Function, s.clock.Next())
	if err != nil {
		return fmt.Errorf("put claim: %w", err)
	}
	return nil
}

// Claim returns the claim for (partition, permission).
// Returns ErrNotFound if none is stored.
func (s *Store) Claim(ctx context.Context, partition, permission string) (ir.Claim, error) {
	var c ir.Claim
	err := s.db.QueryRowContext(ctx, `
		SELECT partition, permission, grantor, secret, module, function
		FROM cap_claims WHERE partition = ? AND permission = ?
	`, partition, permission).Scan(&c.Partition, &c.Permission, &c.Grantor, &c.Secret, &c.Module, &c.Function)
	if isNoRows(err) {
		return ir.Claim{}, ErrNotFound
	}
	if err != nil {
		return ir.Claim{}, fmt.Errorf("read claim: %w", err)
	}
	return c, nil
}

// Claims lists every stored claim.
func (s *Store) Claims(ctx context.Context) ([]ir.Claim, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT partition, permission, grantor, secret, module, function
		FROM cap_claims ORDER BY partition ASC, permission ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	defer rows.Close()

	claims := []ir.Claim{}
	for rows.Next() {
		var c ir.Claim
		if err := rows.Scan(&c.Partition, &c.Permission, &c.Grantor, &c.Secret, &c.Module, &c.Function); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claims: %w", err)
	}
	return claims, nil
}

func scanGrant(r rowScanner) (ir.Grant, error) {
	var g ir.Grant
	var functions string
	err := r.Scan(&g.ID, &g.Grantor, &g.Secret, &functions, &g.Revoked, &g.Seq)
	if isNoRows(err) {
		return ir.Grant{}, ErrNotFound
	}
	if err != nil {
		return ir.Grant{}, fmt.Errorf("scan grant: %w", err)
	}
	if g.Functions, err = unmarshalFunctions(functions); err != nil {
		return ir.Grant{}, err
	}
	return g, nil
}
