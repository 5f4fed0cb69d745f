package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadmap/internal/classify"
	"github.com/sells-group/leadmap/internal/cost"
	"github.com/sells-group/leadmap/internal/credits"
	"github.com/sells-group/leadmap/internal/export"
	"github.com/sells-group/leadmap/internal/leads"
	"github.com/sells-group/leadmap/internal/search"
	"github.com/sells-group/leadmap/internal/store"
	"github.com/sells-group/leadmap/pkg/checkout"
	"github.com/sells-group/leadmap/pkg/google"
	"github.com/sells-group/leadmap/pkg/notion"
	"github.com/sells-group/leadmap/pkg/salesforce"
)

// appEnv holds the initialized components shared by the search, credits
// and serve commands.
type appEnv struct {
	Store      store.Store
	Gate       *credits.Gate
	Classifier *classify.Table
	Searcher   *search.Searcher // nil unless search was requested
	Sessions   *search.Sessions
	Exporter   *export.Exporter
	// Sink resolves a hand-off target by name.
	Sink func(name string) (export.Sink, error)
}

// Close releases resources held by the environment.
func (a *appEnv) Close() {
	if a.Store != nil {
		_ = a.Store.Close()
	}
}

// initApp opens the ledger and builds the gate. withSearch also builds the
// Places searcher, which needs an API key.
func initApp(ctx context.Context, withSearch bool) (*appEnv, error) {
	table, err := initClassifier()
	if err != nil {
		return nil, err
	}
	policy, err := parseKeyPolicy(cfg.Leads.EmptyKeyPolicy)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	env := &appEnv{
		Store:      st,
		Gate:       credits.NewGate(st, initCheckout(), creditsConfig()),
		Classifier: table,
		Sessions:   search.NewSessions(cfg.Search.MaxSessions, leads.WithKeyPolicy(policy)),
		Exporter:   export.New(export.WithExcelBOM(cfg.Export.ExcelBOM)),
		Sink:       initSink,
	}

	if withSearch {
		s, err := initSearcher(env.Gate, table)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Searcher = s
	}
	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initClassifier() (*classify.Table, error) {
	if cfg.Classify.PlatformsFile == "" {
		return classify.DefaultTable(), nil
	}
	t, err := classify.LoadTable(cfg.Classify.PlatformsFile)
	if err != nil {
		return nil, eris.Wrap(err, "load platform table")
	}
	zap.L().Info("loaded platform table",
		zap.String("path", cfg.Classify.PlatformsFile),
		zap.Int("rules", len(t.Rules())),
	)
	return t, nil
}

// initCheckout returns nil when no checkout key is configured; the gate then
// refuses purchases with ErrCheckoutUnavailable.
func initCheckout() checkout.Client {
	if cfg.Checkout.Key == "" {
		return nil
	}
	return checkout.NewClient(cfg.Checkout.Key, checkout.WithBaseURL(cfg.Checkout.BaseURL))
}

func creditsConfig() credits.Config {
	return credits.Config{
		FreeSearches: cfg.Credits.FreeSearches,
		PackSize:     cfg.Credits.PackSize,
		PriceID:      cfg.Checkout.PriceID,
		SuccessURL:   cfg.Checkout.SuccessURL,
		CancelURL:    cfg.Checkout.CancelURL,
	}
}

func initSearcher(gate search.Authorizer, table *classify.Table) (*search.Searcher, error) {
	if err := cfg.Validate("search"); err != nil {
		return nil, err
	}
	filter, err := search.ParseLeadFilter(cfg.Search.LeadFilter)
	if err != nil {
		return nil, err
	}

	g := google.NewClient(cfg.Google.Key, google.WithBaseURL(cfg.Google.BaseURL))
	calc := cost.NewCalculator(cost.Rates{
		Places: cost.PlacesRate{PerCall: cfg.Pricing.PlacesPerCall},
	})
	return search.NewSearcher(g, gate, table, calc, search.Config{
		RateLimit:       cfg.Search.RateLimit,
		Concurrency:     cfg.Search.Concurrency,
		MaxPagesPerTile: cfg.Search.MaxPagesPerTile,
		TileKM:          cfg.Search.TileKM,
		MaxTiles:        cfg.Search.MaxTiles,
		LeadFilter:      filter,
	}), nil
}

func parseKeyPolicy(s string) (leads.KeyPolicy, error) {
	switch leads.KeyPolicy(s) {
	case "", leads.KeyPolicyUnique:
		return leads.KeyPolicyUnique, nil
	case leads.KeyPolicyDrop:
		return leads.KeyPolicyDrop, nil
	default:
		return "", eris.Errorf("invalid leads.empty_key_policy %q", s)
	}
}

// initSink builds the named hand-off target from config.
func initSink(name string) (export.Sink, error) {
	switch name {
	case "notion":
		if err := cfg.Validate("notion"); err != nil {
			return nil, err
		}
		return &notion.LeadSink{
			Client:     notion.NewClient(cfg.Notion.Token),
			DatabaseID: cfg.Notion.LeadDB,
		}, nil
	case "salesforce":
		if err := cfg.Validate("salesforce"); err != nil {
			return nil, err
		}
		pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
		if err != nil {
			return nil, eris.Wrap(err, "read salesforce JWT private key")
		}
		c, err := salesforce.Connect(salesforce.Credentials{
			LoginURL: cfg.Salesforce.LoginURL,
			Username: cfg.Salesforce.Username,
			ClientID: cfg.Salesforce.ClientID,
			KeyPEM:   string(pemData),
		})
		if err != nil {
			return nil, err
		}
		return &salesforce.LeadSink{Client: c}, nil
	default:
		return nil, eris.Errorf("unknown sink %q (want notion or salesforce)", name)
	}
}
