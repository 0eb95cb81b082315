// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/soltank/soltank-bot/internal/storage"
)

// Storage implements storage.Store on top of a pgx connection pool.
type Storage struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, dsn string, logger *zap.Logger) (*Storage, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Storage{pool: pool, logger: logger.Named("postgres")}, nil
}

var _ storage.Store = (*Storage)(nil)

// Close closes the connection pool.
func (s *Storage) Close() {
	s.pool.Close()
}

// RunMigrations creates the ledger tables if they do not exist yet.
func (s *Storage) RunMigrations(ctx context.Context) error {
	var lockObtained bool
	if err := s.pool.QueryRow(ctx, "SELECT pg_try_advisory_lock(4201)").Scan(&lockObtained); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	if !lockObtained {
		return fmt.Errorf("another migration is in progress")
	}
	defer s.pool.Exec(ctx, "SELECT pg_advisory_unlock(4201)")

	statements := []string{
		`CREATE TABLE IF NOT EXISTS buys (
			id BIGSERIAL PRIMARY KEY,
			contract_address TEXT NOT NULL,
			purchased_price DOUBLE PRECISION NOT NULL,
			price_factor INTEGER NOT NULL DEFAULT 0,
			platform TEXT NOT NULL,
			chain TEXT NOT NULL,
			date TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_buys_chain ON buys (chain)`,
		`CREATE TABLE IF NOT EXISTS signal_seen (
			action TEXT NOT NULL,
			contract_address TEXT NOT NULL,
			count INTEGER NOT NULL,
			first_at TIMESTAMPTZ NOT NULL,
			last_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (action, contract_address)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}

	s.logger.Info("Migrations applied")
	return nil
}

// PostgreSQL error codes.
const pgErrUniqueViolation = "23505"

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return false
}
