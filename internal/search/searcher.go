// Package search runs a map-area search: it fans the drawn rectangle out
// into tiles, queries the places provider, classifies each result, and
// fills the session's lead store.
package search

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadmap/internal/classify"
	"github.com/sells-group/leadmap/internal/cost"
	"github.com/sells-group/leadmap/internal/credits"
	"github.com/sells-group/leadmap/internal/geo"
	"github.com/sells-group/leadmap/internal/leads"
	"github.com/sells-group/leadmap/internal/model"
	"github.com/sells-group/leadmap/pkg/google"
)

// Authorizer meters searches. *credits.Gate implements it.
type Authorizer interface {
	Authorize(ctx context.Context, account string) (*credits.Ticket, error)
	Refund(ctx context.Context, t *credits.Ticket) error
}

// Config tunes how an area is searched.
type Config struct {
	RateLimit       float64
	Concurrency     int
	MaxPagesPerTile int
	TileKM          float64
	MaxTiles        int
	LeadFilter      LeadFilter
}

// Request is one search over a drawn rectangle.
type Request struct {
	Account string       `json:"account"`
	Query   string       `json:"query"`
	Bounds  model.Bounds `json:"bounds"`
	// Filter overrides the configured lead filter when set.
	Filter LeadFilter `json:"filter,omitempty"`
}

// Result summarizes a completed search.
type Result struct {
	Markers     []model.Marker `json:"markers"`
	Leads       int            `json:"leads"`
	Tiles       int            `json:"tiles"`
	FailedTiles int            `json:"failed_tiles"`
	APICalls    int            `json:"api_calls"`
	Skipped     int            `json:"skipped"`
	CostUSD     float64        `json:"cost_usd"`
	Duration    time.Duration  `json:"duration"`
	Remaining   int            `json:"credits_remaining"`
	// Refunded is set when a failed search gave its credit back.
	Refunded bool `json:"refunded"`
}

// Searcher executes area searches.
type Searcher struct {
	google     google.Client
	gate       Authorizer
	classifier *classify.Table
	calc       *cost.Calculator
	limiter    *rate.Limiter
	cfg        Config
}

// NewSearcher creates a Searcher. gate may be nil to run unmetered.
func NewSearcher(g google.Client, gate Authorizer, table *classify.Table, calc *cost.Calculator, cfg Config) *Searcher {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxPagesPerTile <= 0 {
		cfg.MaxPagesPerTile = 3
	}
	if cfg.LeadFilter == "" {
		cfg.LeadFilter = FilterAll
	}
	if table == nil {
		table = classify.DefaultTable()
	}
	if calc == nil {
		calc = cost.NewCalculator(cost.DefaultRates())
	}
	return &Searcher{
		google:     g,
		gate:       gate,
		classifier: table,
		calc:       calc,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		cfg:        cfg,
	}
}

// Run searches req.Bounds for req.Query and replaces the contents of store
// with the accepted places. One credit is consumed up front and refunded if
// every tile fails.
func (s *Searcher) Run(ctx context.Context, store *leads.Store, req Request) (*Result, error) {
	start := time.Now()
	log := zap.L().With(zap.String("query", req.Query), zap.String("account", req.Account))

	if req.Query == "" {
		return nil, eris.New("search: query is required")
	}
	area, err := geo.NewArea(req.Bounds)
	if err != nil {
		return nil, eris.Wrap(err, "search: invalid area")
	}
	filter := s.cfg.LeadFilter
	if req.Filter != "" {
		if filter, err = ParseLeadFilter(string(req.Filter)); err != nil {
			return nil, err
		}
	}

	var ticket *credits.Ticket
	if s.gate != nil {
		ticket, err = s.gate.Authorize(ctx, req.Account)
		if err != nil {
			return nil, err
		}
	}

	store.Reset()

	tiles := area.Tiles(s.cfg.TileKM, s.cfg.MaxTiles)
	log.Info("search started", zap.Int("tiles", len(tiles)), zap.String("filter", string(filter)))

	var (
		apiCalls atomic.Int64
		failed   atomic.Int64
		skipped  atomic.Int64
		markers  = newMarkerSet()
		firstErr error
		errOnce  sync.Once
	)

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)
	for i, tile := range tiles {
		g.Go(func() error {
			places, calls, err := s.searchTile(ctx, req.Query, tile)
			apiCalls.Add(int64(calls))
			if err != nil {
				failed.Add(1)
				errOnce.Do(func() { firstErr = err })
				log.Warn("tile search failed", zap.Int("tile", i), zap.Error(err))
			}

			// Keep whatever pages arrived before a failure.
			for _, p := range places {
				d := p.Detail()
				if d.Location != nil && !area.Contains(*d.Location) {
					skipped.Add(1)
					continue
				}
				c := s.classifier.Classify(d.Website)
				if !filter.Accept(c) {
					skipped.Add(1)
					continue
				}
				lead, ok := store.Put(d)
				if !ok {
					skipped.Add(1)
					continue
				}
				markers.put(model.Marker{
					Lead:     lead,
					Website:  d.Website,
					Location: d.Location,
					Category: string(c.Kind),
					Platform: c.Platform,
					Label:    c.Label(),
					Genuine:  classify.IsGenuineWebsite(c),
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	calls := int(apiCalls.Load())
	result := &Result{
		Markers:     markers.list(),
		Leads:       store.Len(),
		Tiles:       len(tiles),
		FailedTiles: int(failed.Load()),
		APICalls:    calls,
		Skipped:     int(skipped.Load()),
		CostUSD:     s.calc.Places(calls),
		Duration:    time.Since(start),
	}
	if ticket != nil {
		result.Remaining = ticket.Remaining
	}

	if result.FailedTiles == len(tiles) {
		if ticket != nil {
			// Use a fresh context so a cancelled request still gets its credit back.
			if rerr := s.gate.Refund(context.WithoutCancel(ctx), ticket); rerr != nil {
				log.Error("refund failed", zap.Error(rerr))
			} else {
				result.Remaining = ticket.Remaining + 1
				result.Refunded = true
			}
		}
		return result, eris.Wrap(firstErr, "search: all tiles failed")
	}

	log.Info("search complete",
		zap.Int("leads", result.Leads),
		zap.Int("tiles", result.Tiles),
		zap.Int("failed_tiles", result.FailedTiles),
		zap.Int("api_calls", result.APICalls),
		zap.Float64("cost_usd", result.CostUSD),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// searchTile paginates one tile up to MaxPagesPerTile pages.
func (s *Searcher) searchTile(ctx context.Context, query string, tile model.Bounds) ([]google.Place, int, error) {
	var (
		places    []google.Place
		pageToken string
		apiCalls  int
	)

	for page := 0; page < s.cfg.MaxPagesPerTile; page++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return places, apiCalls, eris.Wrap(err, "search: rate limit wait")
		}

		resp, err := s.google.SearchArea(ctx, google.AreaSearchRequest{
			TextQuery:           query,
			LocationRestriction: google.RectFromBounds(tile),
			PageSize:            google.MaxPageSize,
			PageToken:           pageToken,
		})
		apiCalls++
		if err != nil {
			return places, apiCalls, eris.Wrap(err, "search: area search")
		}

		places = append(places, resp.Places...)
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return places, apiCalls, nil
}

// IsCreditError reports whether err means the account must buy credits.
func IsCreditError(err error) bool {
	return errors.Is(err, credits.ErrInsufficientCredits)
}

// markerSet keeps one marker per lead key in first-seen order; a later
// marker for the same key replaces the earlier one.
type markerSet struct {
	mu    sync.Mutex
	index map[string]int
	items []model.Marker
}

func newMarkerSet() *markerSet {
	return &markerSet{index: make(map[string]int)}
}

func (m *markerSet) put(mk model.Marker) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i, ok := m.index[mk.Lead.Key]; ok {
		m.items[i] = mk
		return
	}
	m.index[mk.Lead.Key] = len(m.items)
	m.items = append(m.items, mk)
}

func (m *markerSet) list() []model.Marker {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Marker, len(m.items))
	copy(out, m.items)
	return out
}
