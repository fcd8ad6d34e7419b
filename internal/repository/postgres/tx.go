package postgres

import (
	"context"

	"github.com/toolaccess/broker/internal/domain"
	"github.com/toolaccess/broker/internal/store"
)

// WithTransaction implements store.Store. It is the one place credential
// issuance and its CREDENTIAL_ISSUED audit row are made atomic (spec.md
// §4.1/§4.5): both InsertCredential and AppendAccessLog inside fn run
// against the same pgx.Tx and commit or roll back together.
func (s *PGStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, txStore store.Store) error) error {
	if s.pool == nil {
		// Already inside a transaction — reuse it rather than nesting.
		return fn(ctx, s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.NewError(domain.KindUnavailable, "STORE_UNAVAILABLE", "failed to begin transaction", err)
	}

	txStore := &PGStore{db: tx}
	if err := fn(ctx, txStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.NewError(domain.KindUnavailable, "STORE_UNAVAILABLE", "failed to commit transaction", err)
	}
	return nil
}
