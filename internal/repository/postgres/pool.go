package postgres

/*
pool.go owns the pgx connection pool and the thin querier abstraction that
lets every repository method run unchanged whether it is called directly
against the pool or inside a WithTransaction block against a pgx.Tx.
*/

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toolaccess/broker/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, which lets
// PGStore methods be written once and reused inside and outside a
// transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PGStore implements store.Store on top of PostgreSQL via pgx.
type PGStore struct {
	db   querier
	pool *pgxpool.Pool // non-nil only for the top-level, non-transactional Store
}

// NewPGStore opens a pool tuned from cfg and verifies connectivity.
func NewPGStore(ctx context.Context, connString string, maxConns, minConns int32) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, "INVALID_DSN", "failed to parse database url", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, domain.NewError(domain.KindUnavailable, "STORE_UNAVAILABLE", "failed to open database pool", err)
	}
	return &PGStore{db: pool, pool: pool}, nil
}

// Ping verifies connectivity, used at startup before serving traffic.
func (s *PGStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	if err := s.pool.Ping(ctx); err != nil {
		return domain.NewError(domain.KindUnavailable, "STORE_UNAVAILABLE", "database unreachable", err)
	}
	return nil
}

func (s *PGStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// translatePGError maps a pgx/pgconn error into the domain error taxonomy
// from spec.md §4.1/§7.
func translatePGError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return domain.NewError(domain.KindConflict, "ALREADY_EXISTS", "entity already exists", err)
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return domain.NewError(domain.KindConflict, "CONFLICTING_UPDATE", "concurrent update conflict", err)
		}
	}
	return domain.NewError(domain.KindUnavailable, "STORE_UNAVAILABLE", "store operation failed", err)
}
