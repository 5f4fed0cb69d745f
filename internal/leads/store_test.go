package leads

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/leadmap/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func ptrF(v float64) *float64 { return &v }
func ptrI(v int) *int         { return &v }

func joes() model.PlaceDetail {
	return model.PlaceDetail{
		PlaceID:          "ChIJ-joes",
		Name:             "Joe's Pizza",
		FormattedAddress: "123 Main St, Springfield",
		Phone:            "555-0100",
		Website:          "https://joespizza.com",
		Rating:           ptrF(4.5),
		UserRatingCount:  ptrI(212),
	}
}

func TestUpsert_Idempotent(t *testing.T) {
	once := New()
	require.True(t, once.Upsert(joes()))

	twice := New()
	require.True(t, twice.Upsert(joes()))
	require.True(t, twice.Upsert(joes()))

	assert.Equal(t, 1, twice.Len())
	assert.Equal(t, once.Leads(), twice.Leads())
}

func TestUpsert_SamePlaceIDKeepsLaterFields(t *testing.T) {
	s := New()
	first := joes()
	second := joes()
	second.Name = "Joe's Pizza & Pasta"
	second.Phone = "555-0199"
	second.Rating = nil

	s.Upsert(first)
	s.Upsert(second)

	require.Equal(t, 1, s.Len())
	lead, ok := s.Get("ChIJ-joes")
	require.True(t, ok)
	assert.Equal(t, "Joe's Pizza & Pasta", lead.Name)
	assert.Equal(t, "555-0199", lead.Phone)
	assert.Empty(t, lead.Rating, "upsert replaces the whole lead")
	assert.Equal(t, "212", lead.Reviews)
}

func TestUpsert_NameAddressComposite(t *testing.T) {
	s := New()
	s.Upsert(model.PlaceDetail{Name: "Acme Plumbing", FormattedAddress: "1 Elm St"})
	s.Upsert(model.PlaceDetail{Name: "  Acme Plumbing ", FormattedAddress: "1 Elm St  ", Phone: "555-1111"})

	require.Equal(t, 1, s.Len())
	lead, ok := s.Get("Acme Plumbing::1 Elm St")
	require.True(t, ok)
	assert.Equal(t, "555-1111", lead.Phone)

	s.Upsert(model.PlaceDetail{Name: "Acme Plumbing", FormattedAddress: "2 Elm St"})
	s.Upsert(model.PlaceDetail{Name: "Acme Heating", FormattedAddress: "1 Elm St"})
	assert.Equal(t, 3, s.Len())
}

func TestUpsert_VicinityFallback(t *testing.T) {
	s := New()
	s.Upsert(model.PlaceDetail{Name: "Corner Deli", Vicinity: "Oak Ave"})

	leads := s.Leads()
	require.Len(t, leads, 1)
	assert.Equal(t, "Corner Deli::Oak Ave", leads[0].Key)
	assert.Equal(t, "Oak Ave", leads[0].Address)
}

func TestUpsert_NoIdentity_UniquePolicy(t *testing.T) {
	s := New()
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("rand-%d", n)
	}

	assert.True(t, s.Upsert(model.PlaceDetail{Phone: "555-0000"}))
	assert.True(t, s.Upsert(model.PlaceDetail{Phone: "555-0000"}))

	assert.Equal(t, 2, s.Len(), "records without identity are never deduplicated")
	_, ok := s.Get("rand-1")
	assert.True(t, ok)
}

func TestUpsert_NoIdentity_DropPolicy(t *testing.T) {
	s := New(WithKeyPolicy(KeyPolicyDrop))

	assert.False(t, s.Upsert(model.PlaceDetail{Phone: "555-0000", Name: "  "}))
	assert.Equal(t, 0, s.Len())
}

func TestPut_ReturnsStoredLead(t *testing.T) {
	s := New()

	lead, ok := s.Put(joes())
	require.True(t, ok)
	assert.Equal(t, "ChIJ-joes", lead.Key)
	assert.Equal(t, "4.5", lead.Rating)

	stored, found := s.Get(lead.Key)
	require.True(t, found)
	assert.Equal(t, lead, stored)

	_, ok = New(WithKeyPolicy(KeyPolicyDrop)).Put(model.PlaceDetail{})
	assert.False(t, ok)
}

func TestUpsert_KeepsFirstWritePosition(t *testing.T) {
	s := New()
	s.Upsert(model.PlaceDetail{PlaceID: "a", Name: "A"})
	s.Upsert(model.PlaceDetail{PlaceID: "b", Name: "B"})
	s.Upsert(model.PlaceDetail{PlaceID: "a", Name: "A2"})
	s.Upsert(model.PlaceDetail{PlaceID: "c", Name: "C"})

	var names []string
	for _, l := range s.Leads() {
		names = append(names, l.Name)
	}
	assert.Equal(t, []string{"A2", "B", "C"}, names)
}

func TestReset(t *testing.T) {
	s := New()
	s.Upsert(joes())
	s.Upsert(model.PlaceDetail{PlaceID: "other", Name: "Other"})
	require.Equal(t, 2, s.Len())

	s.Reset()
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Leads())
	_, ok := s.Get("ChIJ-joes")
	assert.False(t, ok)

	s.Upsert(joes())
	assert.Equal(t, 1, s.Len())
}

func TestUpsert_Concurrent(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Upsert(model.PlaceDetail{PlaceID: fmt.Sprintf("p-%d", i%10), Name: "N"})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, s.Len())
}

func TestIdentityKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		detail model.PlaceDetail
		want   string
	}{
		{"place id", model.PlaceDetail{PlaceID: " ChIJ1 ", Name: "X"}, "ChIJ1"},
		{"name and address", model.PlaceDetail{Name: " X ", FormattedAddress: " Y "}, "X::Y"},
		{"name only", model.PlaceDetail{Name: "X"}, "X::"},
		{"address only", model.PlaceDetail{Vicinity: "Y"}, "::Y"},
		{"nothing", model.PlaceDetail{Phone: "1"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IdentityKey(tt.detail))
		})
	}
}

func TestFormatRating(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "4", FormatRating(4.0))
	assert.Equal(t, "5", FormatRating(5))
	assert.Equal(t, "4.5", FormatRating(4.5))
	assert.Equal(t, "3.7", FormatRating(3.7))
	assert.Equal(t, "0", FormatRating(0))
}

func TestNormalize_MissingFields(t *testing.T) {
	t.Parallel()

	lead := Normalize(model.PlaceDetail{Name: "Quiet Shop"}, "k")
	assert.Equal(t, "k", lead.Key)
	assert.Empty(t, lead.Phone)
	assert.Empty(t, lead.Rating)
	assert.Empty(t, lead.Reviews)
	assert.Equal(t, "https://www.google.com/maps/search/?api=1&query=Quiet%20Shop", lead.MapsURL)

	zero := Normalize(model.PlaceDetail{Name: "New", Rating: ptrF(0), UserRatingCount: ptrI(0)}, "k")
	assert.Equal(t, "0", zero.Rating)
	assert.Equal(t, "0", zero.Reviews)
}

func TestMapsURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, place, addr, want string
	}{
		{"both", "Joe's Pizza", "123 Main St, Springfield",
			"https://www.google.com/maps/search/?api=1&query=Joe's%20Pizza%20123%20Main%20St%2C%20Springfield"},
		{"address only", "", "1 Elm St", "https://www.google.com/maps/search/?api=1&query=1%20Elm%20St"},
		{"reserved chars", "A&B (Deli)*", "#5", "https://www.google.com/maps/search/?api=1&query=A%26B%20(Deli)*%20%235"},
		{"plus sign", "C+ Tutors", "", "https://www.google.com/maps/search/?api=1&query=C%2B%20Tutors"},
		{"neither", "", "  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, MapsURL(tt.place, tt.addr))
		})
	}
}
