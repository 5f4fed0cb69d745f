// Package credits meters searches against a persisted credit balance and
// sells credit packs through hosted checkout.
package credits

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadmap/internal/model"
	"github.com/sells-group/leadmap/internal/store"
	"github.com/sells-group/leadmap/pkg/checkout"
)

var (
	// ErrInsufficientCredits means the account has no search credits left.
	ErrInsufficientCredits = errors.New("no search credits left, buy a pack to keep searching")
	// ErrPaymentIncomplete means a checkout session has not been paid.
	ErrPaymentIncomplete = errors.New("checkout session is not paid")
	// ErrCheckoutUnavailable means no payment provider is configured.
	ErrCheckoutUnavailable = errors.New("checkout is not configured")
)

// Config holds metering parameters.
type Config struct {
	FreeSearches int
	PackSize     int
	PriceID      string
	SuccessURL   string
	CancelURL    string
}

// Ticket records one authorized search so it can be refunded.
type Ticket struct {
	ID        string `json:"id"`
	Account   string `json:"account"`
	Remaining int    `json:"remaining"`
}

// Fulfillment is the outcome of crediting a paid checkout session.
type Fulfillment struct {
	Account string `json:"account"`
	Granted bool   `json:"granted"`
	Balance int    `json:"balance"`
}

// Gate authorizes searches and credits purchases.
type Gate struct {
	store    store.Store
	checkout checkout.Client
	cfg      Config
}

// NewGate creates a Gate. co may be nil when checkout is not configured.
func NewGate(st store.Store, co checkout.Client, cfg Config) *Gate {
	return &Gate{store: st, checkout: co, cfg: cfg}
}

// Authorize consumes one credit for a search. New accounts receive the free
// allowance first.
func (g *Gate) Authorize(ctx context.Context, account string) (*Ticket, error) {
	if account == "" {
		return nil, eris.New("credits: account is required")
	}
	if err := g.grantFreeTier(ctx, account); err != nil {
		return nil, err
	}

	remaining, err := g.store.Consume(ctx, account, 1, model.ReasonSearch)
	if errors.Is(err, store.ErrInsufficientBalance) {
		zap.L().Info("credits: search refused", zap.String("account", account))
		return nil, ErrInsufficientCredits
	}
	if err != nil {
		return nil, eris.Wrap(err, "credits: consume")
	}

	return &Ticket{ID: uuid.NewString(), Account: account, Remaining: remaining}, nil
}

// Refund returns the credit of a search that produced nothing. Refunding the
// same ticket twice has no further effect.
func (g *Gate) Refund(ctx context.Context, t *Ticket) error {
	if t == nil {
		return nil
	}
	granted, err := g.store.Grant(ctx, t.Account, 1, "refund:"+t.ID, model.ReasonRefund)
	if err != nil {
		return eris.Wrap(err, "credits: refund")
	}
	if granted {
		zap.L().Info("credits: refunded search", zap.String("account", t.Account), zap.String("ticket", t.ID))
	}
	return nil
}

// Balance returns the credits an account can spend. Accounts that have
// never searched report the free allowance they would receive.
func (g *Gate) Balance(ctx context.Context, account string) (int, error) {
	exists, err := g.store.Exists(ctx, account)
	if err != nil {
		return 0, eris.Wrap(err, "credits: balance")
	}
	if !exists {
		return max(g.cfg.FreeSearches, 0), nil
	}
	bal, err := g.store.Balance(ctx, account)
	if err != nil {
		return 0, eris.Wrap(err, "credits: balance")
	}
	return bal, nil
}

// Grant adds credits manually. A non-empty reference makes the grant
// idempotent.
func (g *Gate) Grant(ctx context.Context, account string, amount int, reference string) (bool, error) {
	granted, err := g.store.Grant(ctx, account, amount, reference, model.ReasonManual)
	if err != nil {
		return false, eris.Wrap(err, "credits: grant")
	}
	return granted, nil
}

// History returns recent ledger entries for an account.
func (g *Gate) History(ctx context.Context, account string, limit int) ([]model.LedgerEntry, error) {
	entries, err := g.store.History(ctx, account, limit)
	if err != nil {
		return nil, eris.Wrap(err, "credits: history")
	}
	return entries, nil
}

// StartCheckout opens a hosted checkout session for one credit pack and
// returns it. The caller redirects the user to Session.URL.
func (g *Gate) StartCheckout(ctx context.Context, account string) (*checkout.Session, error) {
	if g.checkout == nil {
		return nil, ErrCheckoutUnavailable
	}
	if account == "" {
		return nil, eris.New("credits: account is required")
	}

	s, err := g.checkout.CreateSession(ctx, checkout.SessionRequest{
		PriceID:    g.cfg.PriceID,
		Quantity:   1,
		SuccessURL: g.cfg.SuccessURL,
		CancelURL:  g.cfg.CancelURL,
		Account:    account,
	})
	if err != nil {
		return nil, eris.Wrap(err, "credits: start checkout")
	}

	zap.L().Info("credits: checkout started",
		zap.String("account", account),
		zap.String("session", s.ID),
	)
	return s, nil
}

// Fulfill verifies that a checkout session was paid and credits one pack to
// the paying account exactly once. An empty account is taken from the
// session.
func (g *Gate) Fulfill(ctx context.Context, account, sessionID string) (*Fulfillment, error) {
	if g.checkout == nil {
		return nil, ErrCheckoutUnavailable
	}

	s, err := g.checkout.GetSession(ctx, sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "credits: fulfill")
	}
	if !s.Paid() {
		return nil, ErrPaymentIncomplete
	}

	payer := s.ClientReferenceID
	if payer == "" {
		payer = s.Metadata["account"]
	}
	switch {
	case account == "" && payer == "":
		return nil, eris.Errorf("credits: session %s has no account", s.ID)
	case account == "":
		account = payer
	case payer != "" && payer != account:
		return nil, eris.Errorf("credits: session %s belongs to another account", s.ID)
	}

	granted, err := g.store.Grant(ctx, account, g.cfg.PackSize, "checkout:"+s.ID, model.ReasonPurchase)
	if err != nil {
		return nil, eris.Wrap(err, "credits: grant pack")
	}
	bal, err := g.store.Balance(ctx, account)
	if err != nil {
		return nil, eris.Wrap(err, "credits: balance")
	}

	if granted {
		zap.L().Info("credits: pack granted",
			zap.String("account", account),
			zap.String("session", s.ID),
			zap.Int("credits", g.cfg.PackSize),
		)
	}
	return &Fulfillment{Account: account, Granted: granted, Balance: bal}, nil
}

func (g *Gate) grantFreeTier(ctx context.Context, account string) error {
	if g.cfg.FreeSearches <= 0 {
		return nil
	}
	if _, err := g.store.Grant(ctx, account, g.cfg.FreeSearches, "free:"+account, model.ReasonFreeTier); err != nil {
		return eris.Wrap(err, "credits: grant free tier")
	}
	return nil
}
