// Package store persists the credit ledger that meters searches.
package store

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadmap/internal/model"
)

// ErrInsufficientBalance is returned by Consume when the account cannot
// cover the requested amount. The balance is left unchanged.
var ErrInsufficientBalance = errors.New("store: insufficient balance")

// Store defines the persistence interface for credit accounts.
type Store interface {
	// Balance returns the current balance. Unknown accounts have 0.
	Balance(ctx context.Context, account string) (int, error)
	// Exists reports whether the account has ever been credited or debited.
	Exists(ctx context.Context, account string) (bool, error)
	// Consume atomically debits amount and returns the new balance.
	Consume(ctx context.Context, account string, amount int, reason string) (int, error)
	// Grant credits amount to the account. A non-empty reference is applied
	// at most once; a repeat returns false without changing the balance.
	Grant(ctx context.Context, account string, amount int, reference, reason string) (bool, error)
	// History lists the most recent ledger entries, newest first.
	History(ctx context.Context, account string, limit int) ([]model.LedgerEntry, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the Store for driver, one of "sqlite" or "postgres".
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch driver {
	case "sqlite", "":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

func validateAmount(amount int) error {
	if amount <= 0 {
		return eris.Errorf("store: amount must be positive, got %d", amount)
	}
	return nil
}

func validateAccount(account string) error {
	if account == "" {
		return eris.New("store: account is required")
	}
	return nil
}
