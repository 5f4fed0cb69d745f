// Package leads holds the deduplicated lead table for one search session and
// renders it as spreadsheet-ready CSV.
package leads

import (
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/leadmap/internal/model"
)

// KeyPolicy decides what happens to a place with no place ID, name, or
// address.
type KeyPolicy string

const (
	// KeyPolicyUnique keys such records with a fresh random ID. They are
	// kept but can never be deduplicated.
	KeyPolicyUnique KeyPolicy = "unique"
	// KeyPolicyDrop discards such records.
	KeyPolicyDrop KeyPolicy = "drop"
)

const (
	keySeparator  = "::"
	mapsSearchURL = "https://www.google.com/maps/search/?api=1&query="
)

// Store is an upsert-only table of leads keyed by identity. Iteration order
// is the order in which each key was first written; overwriting a key keeps
// its position. A Store is safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	policy KeyPolicy
	newID  func() string
	index  map[string]int
	leads  []model.Lead
}

// Option configures a Store.
type Option func(*Store)

// WithKeyPolicy sets the policy for records without a derivable identity.
func WithKeyPolicy(p KeyPolicy) Option {
	return func(s *Store) {
		if p != "" {
			s.policy = p
		}
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		policy: KeyPolicyUnique,
		newID:  uuid.NewString,
		index:  make(map[string]int),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Reset removes every lead. Call it at the start of each search session.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.index = make(map[string]int)
	s.leads = nil
}

// Upsert normalizes d and stores it, replacing any lead with the same
// identity key. It returns false when the record was discarded.
func (s *Store) Upsert(d model.PlaceDetail) bool {
	_, ok := s.Put(d)
	return ok
}

// Put is Upsert that also returns the stored lead.
func (s *Store) Put(d model.PlaceDetail) (model.Lead, bool) {
	key := IdentityKey(d)
	if key == "" {
		if s.policy == KeyPolicyDrop {
			zap.L().Debug("leads: dropping place without identity")
			return model.Lead{}, false
		}
		key = s.newID()
	}
	lead := Normalize(d, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index[key]; ok {
		s.leads[i] = lead
		return lead, true
	}
	s.index[key] = len(s.leads)
	s.leads = append(s.leads, lead)
	return lead, true
}

// Len returns the number of stored leads.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.leads)
}

// Leads returns a copy of the stored leads in iteration order.
func (s *Store) Leads() []model.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Lead, len(s.leads))
	copy(out, s.leads)
	return out
}

// Get returns the lead stored under key.
func (s *Store) Get(key string) (model.Lead, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[key]
	if !ok {
		return model.Lead{}, false
	}
	return s.leads[i], true
}

// IdentityKey derives the deduplication key for d: the place ID when
// present, otherwise trimmed name and address joined by "::". It returns ""
// when none of the three is available.
func IdentityKey(d model.PlaceDetail) string {
	if id := strings.TrimSpace(d.PlaceID); id != "" {
		return id
	}
	name := strings.TrimSpace(d.Name)
	addr := strings.TrimSpace(d.Address())
	if name == "" && addr == "" {
		return ""
	}
	return name + keySeparator + addr
}

// Normalize converts d into a Lead stored under key.
func Normalize(d model.PlaceDetail, key string) model.Lead {
	name := strings.TrimSpace(d.Name)
	addr := strings.TrimSpace(d.Address())

	lead := model.Lead{
		Key:     key,
		Name:    name,
		Address: addr,
		Phone:   strings.TrimSpace(d.Phone),
		MapsURL: MapsURL(name, addr),
	}
	if d.Rating != nil {
		lead.Rating = FormatRating(*d.Rating)
	}
	if d.UserRatingCount != nil {
		lead.Reviews = strconv.Itoa(*d.UserRatingCount)
	}
	return lead
}

// FormatRating renders a rating with the fewest digits that round-trip:
// 4.0 becomes "4" and 4.5 stays "4.5".
func FormatRating(r float64) string {
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// MapsURL builds a Google Maps text-search link for name and address. It
// returns "" when both are empty.
func MapsURL(name, address string) string {
	var parts []string
	for _, p := range []string{name, address} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return mapsSearchURL + encodeComponent(strings.Join(parts, " "))
}

// componentReplacer turns url.QueryEscape output into encodeURIComponent
// output, which leaves !'()* literal and encodes space as %20.
var componentReplacer = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

func encodeComponent(s string) string {
	return componentReplacer.Replace(url.QueryEscape(s))
}
