package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadmap/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// One connection serializes ledger writes.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS credit_accounts (
	id         TEXT PRIMARY KEY,
	balance    INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS credit_ledger (
	id         TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES credit_accounts(id),
	delta      INTEGER NOT NULL,
	reason     TEXT NOT NULL,
	reference  TEXT UNIQUE,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_credit_ledger_account ON credit_ledger(account_id, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Balance(ctx context.Context, account string) (int, error) {
	var balance int
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM credit_accounts WHERE id = ?`, account,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: get balance %s", account)
	}
	return balance, nil
}

func (s *SQLiteStore) Exists(ctx context.Context, account string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM credit_accounts WHERE id = ?`, account,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: check account %s", account)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Consume(ctx context.Context, account string, amount int, reason string) (int, error) {
	if err := validateAccount(account); err != nil {
		return 0, err
	}
	if err := validateAmount(amount); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin consume")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE credit_accounts SET balance = balance - ?, updated_at = ? WHERE id = ? AND balance >= ?`,
		amount, now, account, amount,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: debit %s", account)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return 0, ErrInsufficientBalance
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO credit_ledger (id, account_id, delta, reason, reference, created_at) VALUES (?, ?, ?, ?, NULL, ?)`,
		uuid.New().String(), account, -amount, reason, now,
	); err != nil {
		return 0, eris.Wrap(err, "sqlite: insert ledger entry")
	}

	var balance int
	if err := tx.QueryRowContext(ctx,
		`SELECT balance FROM credit_accounts WHERE id = ?`, account,
	).Scan(&balance); err != nil {
		return 0, eris.Wrap(err, "sqlite: read balance")
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit consume")
	}
	return balance, nil
}

func (s *SQLiteStore) Grant(ctx context.Context, account string, amount int, reference, reason string) (bool, error) {
	if err := validateAccount(account); err != nil {
		return false, err
	}
	if err := validateAmount(amount); err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: begin grant")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO credit_accounts (id, balance, created_at, updated_at) VALUES (?, 0, ?, ?) ON CONFLICT(id) DO NOTHING`,
		account, now, now,
	); err != nil {
		return false, eris.Wrapf(err, "sqlite: ensure account %s", account)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO credit_ledger (id, account_id, delta, reason, reference, created_at) VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT(reference) DO NOTHING`,
		uuid.New().String(), account, amount, reason, nullString(reference), now,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert ledger entry")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		// Reference already applied; keep the account row if it was new.
		if err := tx.Commit(); err != nil {
			return false, eris.Wrap(err, "sqlite: commit grant")
		}
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE credit_accounts SET balance = balance + ?, updated_at = ? WHERE id = ?`,
		amount, now, account,
	); err != nil {
		return false, eris.Wrapf(err, "sqlite: credit %s", account)
	}

	if err := tx.Commit(); err != nil {
		return false, eris.Wrap(err, "sqlite: commit grant")
	}
	return true, nil
}

func (s *SQLiteStore) History(ctx context.Context, account string, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, delta, reason, reference, created_at FROM credit_ledger WHERE account_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		account, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list ledger")
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var ref sql.NullString
		if err := rows.Scan(&e.ID, &e.Account, &e.Delta, &e.Reason, &ref, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ledger entry")
		}
		e.Reference = ref.String
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: iterate ledger")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
