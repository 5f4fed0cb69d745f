package search

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/leadmap/internal/classify"
	"github.com/sells-group/leadmap/internal/credits"
	"github.com/sells-group/leadmap/internal/leads"
	"github.com/sells-group/leadmap/internal/model"
	"github.com/sells-group/leadmap/pkg/google"
	"github.com/sells-group/leadmap/pkg/google/mocks"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeGate struct {
	mu         sync.Mutex
	refuse     bool
	remaining  int
	authorized int
	refunds    int
	refundErr  error
}

func (f *fakeGate) Authorize(_ context.Context, account string) (*credits.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse {
		return nil, credits.ErrInsufficientCredits
	}
	f.authorized++
	return &credits.Ticket{ID: "ticket-1", Account: account, Remaining: f.remaining}, nil
}

func (f *fakeGate) Refund(_ context.Context, _ *credits.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds++
	return f.refundErr
}

var testBounds = model.Bounds{North: 34.10, South: 34.00, East: -118.20, West: -118.30}

func inside() *google.LatLng  { return &google.LatLng{Latitude: 34.05, Longitude: -118.25} }
func outside() *google.LatLng { return &google.LatLng{Latitude: 35.00, Longitude: -118.25} }

func place(id, name, website string, loc *google.LatLng) google.Place {
	return google.Place{
		ID:               id,
		DisplayName:      google.DisplayName{Text: name},
		FormattedAddress: "1 Main St, Los Angeles, CA",
		WebsiteURI:       website,
		Location:         loc,
	}
}

func singleTileConfig() Config {
	return Config{RateLimit: 1000, Concurrency: 2, MaxPagesPerTile: 3}
}

func twoTileConfig() Config {
	cfg := singleTileConfig()
	cfg.TileKM = 1
	cfg.MaxTiles = 2
	return cfg
}

func mixedPage() *google.AreaSearchResponse {
	return &google.AreaSearchResponse{Places: []google.Place{
		place("p1", "Joe's Pizza", "", inside()),
		place("p2", "Taco Spot", "https://facebook.com/tacospot", inside()),
		place("p3", "Real Cafe", "https://realcafe.com", inside()),
		place("p4", "Far Away Diner", "", outside()),
	}}
}

func TestRun_ClassifiesAndStores(t *testing.T) {
	gm := mocks.NewMockClient(t)
	gm.On("SearchArea", mock.Anything, mock.MatchedBy(func(r google.AreaSearchRequest) bool {
		return r.TextQuery == "pizza" && r.PageToken == "" && r.PageSize == google.MaxPageSize
	})).Return(mixedPage(), nil).Once()

	gate := &fakeGate{remaining: 2}
	s := NewSearcher(gm, gate, nil, nil, singleTileConfig())
	store := leads.New()

	res, err := s.Run(context.Background(), store, Request{Account: "acct", Query: "pizza", Bounds: testBounds})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Leads)
	assert.Equal(t, 3, store.Len())
	assert.Equal(t, 1, res.Tiles)
	assert.Zero(t, res.FailedTiles)
	assert.Equal(t, 1, res.APICalls)
	assert.Equal(t, 1, res.Skipped)
	assert.InDelta(t, 0.032, res.CostUSD, 1e-9)
	assert.Equal(t, 2, res.Remaining)
	assert.Equal(t, 1, gate.authorized)
	assert.Zero(t, gate.refunds)

	require.Len(t, res.Markers, 3)
	assert.Equal(t, "p1", res.Markers[0].Lead.Key)
	assert.Equal(t, string(classify.KindNoWebsite), res.Markers[0].Category)
	assert.Equal(t, "No website", res.Markers[0].Label)
	assert.Equal(t, string(classify.KindSocialMedia), res.Markers[1].Category)
	assert.Equal(t, "facebook", res.Markers[1].Platform)
	assert.Equal(t, "Facebook page", res.Markers[1].Label)
	assert.False(t, res.Markers[1].Genuine)
	assert.Equal(t, "Website", res.Markers[2].Label)
	assert.True(t, res.Markers[2].Genuine)
	require.NotNil(t, res.Markers[2].Location)
	assert.InDelta(t, 34.05, res.Markers[2].Location.Lat, 1e-9)
}

func TestRun_LeadFilters(t *testing.T) {
	tests := []struct {
		filter LeadFilter
		want   []string
	}{
		{FilterAll, []string{"p1", "p2", "p3"}},
		{FilterNoGenuineWebsite, []string{"p1", "p2"}},
		{FilterNoWebsite, []string{"p1"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.filter), func(t *testing.T) {
			gm := mocks.NewMockClient(t)
			gm.On("SearchArea", mock.Anything, mock.Anything).Return(mixedPage(), nil).Once()

			cfg := singleTileConfig()
			cfg.LeadFilter = tt.filter
			s := NewSearcher(gm, nil, nil, nil, cfg)
			store := leads.New()

			_, err := s.Run(context.Background(), store, Request{Query: "pizza", Bounds: testBounds})
			require.NoError(t, err)

			var keys []string
			for _, l := range store.Leads() {
				keys = append(keys, l.Key)
			}
			assert.Equal(t, tt.want, keys)
		})
	}
}

func TestRun_RequestFilterOverridesConfig(t *testing.T) {
	gm := mocks.NewMockClient(t)
	gm.On("SearchArea", mock.Anything, mock.Anything).Return(mixedPage(), nil).Once()

	s := NewSearcher(gm, nil, nil, nil, singleTileConfig())
	store := leads.New()

	res, err := s.Run(context.Background(), store, Request{Query: "pizza", Bounds: testBounds, Filter: FilterNoWebsite})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Leads)
}

func TestRun_InvalidRequestFilter(t *testing.T) {
	s := NewSearcher(mocks.NewMockClient(t), nil, nil, nil, singleTileConfig())
	_, err := s.Run(context.Background(), leads.New(), Request{Query: "pizza", Bounds: testBounds, Filter: "bogus"})
	assert.Error(t, err)
}

func TestRun_Paginates(t *testing.T) {
	gm := mocks.NewMockClient(t)
	gm.On("SearchArea", mock.Anything, mock.MatchedBy(func(r google.AreaSearchRequest) bool { return r.PageToken == "" })).
		Return(&google.AreaSearchResponse{
			Places:        []google.Place{place("a", "A", "", inside())},
			NextPageToken: "tok2",
		}, nil).Once()
	gm.On("SearchArea", mock.Anything, mock.MatchedBy(func(r google.AreaSearchRequest) bool { return r.PageToken == "tok2" })).
		Return(&google.AreaSearchResponse{
			Places:        []google.Place{place("b", "B", "", inside())},
			NextPageToken: "tok3",
		}, nil).Once()

	cfg := singleTileConfig()
	cfg.MaxPagesPerTile = 2
	s := NewSearcher(gm, nil, nil, nil, cfg)
	store := leads.New()

	res, err := s.Run(context.Background(), store, Request{Query: "pizza", Bounds: testBounds})
	require.NoError(t, err)
	assert.Equal(t, 2, res.APICalls)
	assert.Equal(t, 2, res.Leads)
}

func TestRun_DeduplicatesAcrossTiles(t *testing.T) {
	gm := mocks.NewMockClient(t)
	gm.On("SearchArea", mock.Anything, mock.Anything).Return(&google.AreaSearchResponse{
		Places: []google.Place{place("same", "Joe's Pizza", "", inside())},
	}, nil).Twice()

	s := NewSearcher(gm, nil, nil, nil, twoTileConfig())
	store := leads.New()

	res, err := s.Run(context.Background(), store, Request{Query: "pizza", Bounds: testBounds})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Tiles)
	assert.Equal(t, 2, res.APICalls)
	assert.Equal(t, 1, res.Leads)
	assert.Len(t, res.Markers, 1)
}

func westTile(r google.AreaSearchRequest) bool {
	return r.LocationRestriction != nil && r.LocationRestriction.Rectangle.Low.Longitude == testBounds.West
}

func TestRun_PartialTileFailure(t *testing.T) {
	gm := mocks.NewMockClient(t)
	gm.On("SearchArea", mock.Anything, mock.MatchedBy(westTile)).
		Return(nil, errors.New("google: unexpected status 500")).Once()
	gm.On("SearchArea", mock.Anything, mock.MatchedBy(func(r google.AreaSearchRequest) bool { return !westTile(r) })).
		Return(&google.AreaSearchResponse{Places: []google.Place{place("east", "East Deli", "", inside())}}, nil).Once()

	gate := &fakeGate{remaining: 4}
	s := NewSearcher(gm, gate, nil, nil, twoTileConfig())
	store := leads.New()

	res, err := s.Run(context.Background(), store, Request{Account: "acct", Query: "deli", Bounds: testBounds})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailedTiles)
	assert.Equal(t, 1, res.Leads)
	assert.Zero(t, gate.refunds)
}

func TestRun_AllTilesFailRefunds(t *testing.T) {
	gm := mocks.NewMockClient(t)
	gm.On("SearchArea", mock.Anything, mock.Anything).
		Return(nil, errors.New("google: unexpected status 403")).Twice()

	gate := &fakeGate{remaining: 0}
	s := NewSearcher(gm, gate, nil, nil, twoTileConfig())

	res, err := s.Run(context.Background(), leads.New(), Request{Account: "acct", Query: "deli", Bounds: testBounds})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all tiles failed")
	assert.Contains(t, err.Error(), "403")
	require.NotNil(t, res)
	assert.Equal(t, 2, res.FailedTiles)
	assert.Equal(t, 1, res.Remaining)
	assert.True(t, res.Refunded)
	assert.Equal(t, 1, gate.refunds)
}

func TestRun_AllTilesFailRefundError(t *testing.T) {
	gm := mocks.NewMockClient(t)
	gm.On("SearchArea", mock.Anything, mock.Anything).
		Return(nil, errors.New("google: unexpected status 500")).Twice()

	gate := &fakeGate{remaining: 0, refundErr: errors.New("ledger down")}
	s := NewSearcher(gm, gate, nil, nil, twoTileConfig())

	res, err := s.Run(context.Background(), leads.New(), Request{Account: "acct", Query: "deli", Bounds: testBounds})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Refunded)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 1, gate.refunds)
}

func TestRun_AllTilesFailUnmetered(t *testing.T) {
	gm := mocks.NewMockClient(t)
	gm.On("SearchArea", mock.Anything, mock.Anything).
		Return(nil, errors.New("google: unexpected status 500")).Twice()

	s := NewSearcher(gm, nil, nil, nil, twoTileConfig())

	res, err := s.Run(context.Background(), leads.New(), Request{Query: "deli", Bounds: testBounds})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Refunded)
}

func TestRun_InsufficientCredits(t *testing.T) {
	gm := mocks.NewMockClient(t)
	gate := &fakeGate{refuse: true}
	s := NewSearcher(gm, gate, nil, nil, singleTileConfig())

	store := leads.New()
	store.Upsert(model.PlaceDetail{PlaceID: "previous", Name: "Earlier Result"})

	_, err := s.Run(context.Background(), store, Request{Account: "acct", Query: "pizza", Bounds: testBounds})
	require.Error(t, err)
	assert.True(t, IsCreditError(err))
	assert.Equal(t, 1, store.Len(), "a refused search keeps the previous results")
	gm.AssertNotCalled(t, "SearchArea", mock.Anything, mock.Anything)
}

func TestRun_ResetsPreviousResults(t *testing.T) {
	gm := mocks.NewMockClient(t)
	gm.On("SearchArea", mock.Anything, mock.Anything).Return(&google.AreaSearchResponse{
		Places: []google.Place{place("new", "New Place", "", inside())},
	}, nil).Once()

	s := NewSearcher(gm, nil, nil, nil, singleTileConfig())
	store := leads.New()
	store.Upsert(model.PlaceDetail{PlaceID: "old", Name: "Old Place"})

	_, err := s.Run(context.Background(), store, Request{Query: "pizza", Bounds: testBounds})
	require.NoError(t, err)

	_, hasOld := store.Get("old")
	assert.False(t, hasOld)
	_, hasNew := store.Get("new")
	assert.True(t, hasNew)
}

func TestRun_EmptyResultIsNotAnError(t *testing.T) {
	gm := mocks.NewMockClient(t)
	gm.On("SearchArea", mock.Anything, mock.Anything).Return(&google.AreaSearchResponse{}, nil).Once()

	gate := &fakeGate{}
	s := NewSearcher(gm, gate, nil, nil, singleTileConfig())

	res, err := s.Run(context.Background(), leads.New(), Request{Account: "acct", Query: "unicorns", Bounds: testBounds})
	require.NoError(t, err)
	assert.Zero(t, res.Leads)
	assert.Empty(t, res.Markers)
	assert.Zero(t, gate.refunds)
}

func TestRun_Validation(t *testing.T) {
	gate := &fakeGate{}
	s := NewSearcher(mocks.NewMockClient(t), gate, nil, nil, singleTileConfig())

	_, err := s.Run(context.Background(), leads.New(), Request{Account: "acct", Bounds: testBounds})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query is required")

	inverted := model.Bounds{North: 34.0, South: 34.1, East: -118.2, West: -118.3}
	_, err = s.Run(context.Background(), leads.New(), Request{Account: "acct", Query: "pizza", Bounds: inverted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid area")

	assert.Zero(t, gate.authorized, "invalid requests never consume credits")
}

func TestRun_CustomClassifierTable(t *testing.T) {
	table, err := classify.NewTable([]classify.Rule{
		{Pattern: "realcafe.com", Kind: classify.KindOrderingPlatform, Platform: "realcafe"},
	})
	require.NoError(t, err)

	gm := mocks.NewMockClient(t)
	gm.On("SearchArea", mock.Anything, mock.Anything).Return(mixedPage(), nil).Once()

	cfg := singleTileConfig()
	cfg.LeadFilter = FilterNoGenuineWebsite
	s := NewSearcher(gm, nil, table, nil, cfg)
	store := leads.New()

	_, err = s.Run(context.Background(), store, Request{Query: "pizza", Bounds: testBounds})
	require.NoError(t, err)
	// facebook is a real website under this table, realcafe is not.
	_, hasFacebook := store.Get("p2")
	_, hasCafe := store.Get("p3")
	assert.False(t, hasFacebook)
	assert.True(t, hasCafe)
}
