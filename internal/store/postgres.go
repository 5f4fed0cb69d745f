package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadmap/internal/db"
	"github.com/sells-group/leadmap/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS credit_accounts (
	id         TEXT PRIMARY KEY,
	balance    INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS credit_ledger (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	account_id TEXT NOT NULL REFERENCES credit_accounts(id),
	delta      INTEGER NOT NULL,
	reason     TEXT NOT NULL,
	reference  TEXT UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_credit_ledger_account ON credit_ledger(account_id, created_at DESC);
`

// Ping verifies the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Balance(ctx context.Context, account string) (int, error) {
	var balance int
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM credit_accounts WHERE id = $1`, account,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: get balance %s", account)
	}
	return balance, nil
}

func (s *PostgresStore) Exists(ctx context.Context, account string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM credit_accounts WHERE id = $1)`, account,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: check account %s", account)
	}
	return exists, nil
}

func (s *PostgresStore) Consume(ctx context.Context, account string, amount int, reason string) (int, error) {
	if err := validateAccount(account); err != nil {
		return 0, err
	}
	if err := validateAmount(amount); err != nil {
		return 0, err
	}

	var balance int
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE credit_accounts SET balance = balance - $1, updated_at = now() WHERE id = $2 AND balance >= $1 RETURNING balance`,
			amount, account,
		).Scan(&balance)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInsufficientBalance
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: debit %s", account)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO credit_ledger (id, account_id, delta, reason) VALUES ($1, $2, $3, $4)`,
			uuid.New().String(), account, -amount, reason,
		); err != nil {
			return eris.Wrap(err, "postgres: insert ledger entry")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *PostgresStore) Grant(ctx context.Context, account string, amount int, reference, reason string) (bool, error) {
	if err := validateAccount(account); err != nil {
		return false, err
	}
	if err := validateAmount(amount); err != nil {
		return false, err
	}

	var ref *string
	if reference != "" {
		ref = &reference
	}

	granted := false
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO credit_accounts (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
			account,
		); err != nil {
			return eris.Wrapf(err, "postgres: ensure account %s", account)
		}

		tag, err := tx.Exec(ctx,
			`INSERT INTO credit_ledger (id, account_id, delta, reason, reference) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (reference) DO NOTHING`,
			uuid.New().String(), account, amount, reason, ref,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert ledger entry")
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		if _, err := tx.Exec(ctx,
			`UPDATE credit_accounts SET balance = balance + $1, updated_at = now() WHERE id = $2`,
			amount, account,
		); err != nil {
			return eris.Wrapf(err, "postgres: credit %s", account)
		}
		granted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return granted, nil
}

func (s *PostgresStore) History(ctx context.Context, account string, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, delta, reason, COALESCE(reference, ''), created_at FROM credit_ledger WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2`,
		account, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list ledger")
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.ID, &e.Account, &e.Delta, &e.Reason, &e.Reference, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ledger entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: iterate ledger")
}
