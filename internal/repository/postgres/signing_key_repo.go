package postgres

import (
	"context"
	"time"

	"github.com/toolaccess/broker/internal/domain"
)

func (s *PGStore) InsertSigningKey(ctx context.Context, k *domain.SigningKey) error {
	const q = `
		INSERT INTO signing_keys (kid, algorithm, key_material, is_active, created_at, retired_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.Exec(ctx, q, k.KID, k.Algorithm, k.KeyMaterial, k.IsActive, k.CreatedAt, k.RetiredAt)
	if err != nil {
		return translatePGError(err)
	}
	return nil
}

func (s *PGStore) GetSigningKey(ctx context.Context, kid string) (*domain.SigningKey, error) {
	const q = `SELECT kid, algorithm, key_material, is_active, created_at, retired_at FROM signing_keys WHERE kid = $1`
	var k domain.SigningKey
	err := s.db.QueryRow(ctx, q, kid).Scan(&k.KID, &k.Algorithm, &k.KeyMaterial, &k.IsActive, &k.CreatedAt, &k.RetiredAt)
	if err != nil {
		return nil, translatePGError(err)
	}
	return &k, nil
}

func (s *PGStore) GetActiveSigningKey(ctx context.Context) (*domain.SigningKey, error) {
	const q = `
		SELECT kid, algorithm, key_material, is_active, created_at, retired_at
		FROM signing_keys WHERE is_active ORDER BY created_at DESC LIMIT 1`
	var k domain.SigningKey
	err := s.db.QueryRow(ctx, q).Scan(&k.KID, &k.Algorithm, &k.KeyMaterial, &k.IsActive, &k.CreatedAt, &k.RetiredAt)
	if err != nil {
		return nil, translatePGError(err)
	}
	return &k, nil
}

func (s *PGStore) ListSigningKeys(ctx context.Context) ([]*domain.SigningKey, error) {
	const q = `SELECT kid, algorithm, key_material, is_active, created_at, retired_at FROM signing_keys ORDER BY created_at DESC`
	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, translatePGError(err)
	}
	defer rows.Close()

	keys := make([]*domain.SigningKey, 0)
	for rows.Next() {
		var k domain.SigningKey
		if err := rows.Scan(&k.KID, &k.Algorithm, &k.KeyMaterial, &k.IsActive, &k.CreatedAt, &k.RetiredAt); err != nil {
			return nil, translatePGError(err)
		}
		keys = append(keys, &k)
	}
	if err := rows.Err(); err != nil {
		return nil, translatePGError(err)
	}
	return keys, nil
}

// ActivateSigningKey promotes kid to active and demotes every other key.
// Callers should run this inside Store.WithTransaction alongside the
// RetireSigningKey call for the outgoing key, so the keyring never has
// zero or two active keys visible to a concurrent reader.
func (s *PGStore) ActivateSigningKey(ctx context.Context, kid string, activatedAt time.Time) error {
	const deactivateOthers = `UPDATE signing_keys SET is_active = false WHERE kid != $1 AND is_active`
	if _, err := s.db.Exec(ctx, deactivateOthers, kid); err != nil {
		return translatePGError(err)
	}
	const activate = `UPDATE signing_keys SET is_active = true WHERE kid = $1`
	tag, err := s.db.Exec(ctx, activate, kid)
	if err != nil {
		return translatePGError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	_ = activatedAt
	return nil
}

func (s *PGStore) RetireSigningKey(ctx context.Context, kid string, retiredAt time.Time) error {
	const q = `UPDATE signing_keys SET is_active = false, retired_at = $1 WHERE kid = $2`
	_, err := s.db.Exec(ctx, q, retiredAt, kid)
	if err != nil {
		return translatePGError(err)
	}
	return nil
}
