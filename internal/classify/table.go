package classify

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Rule maps a url substring to a third-party platform category.
type Rule struct {
	Pattern  string `yaml:"pattern" json:"pattern"`
	Kind     Kind   `yaml:"category" json:"category"`
	Platform string `yaml:"platform" json:"platform"`
	Display  string `yaml:"display,omitempty" json:"display,omitempty"`
}

// Table is an ordered list of platform rules. Order is significant: the
// first matching rule wins.
type Table struct {
	rules []Rule
}

type tableFile struct {
	Platforms []Rule `yaml:"platforms"`
}

// NewTable validates rules and returns a Table. Patterns are lower-cased.
func NewTable(rules []Rule) (*Table, error) {
	out := make([]Rule, 0, len(rules))
	for i, r := range rules {
		r.Pattern = strings.ToLower(strings.TrimSpace(r.Pattern))
		r.Platform = strings.ToLower(strings.TrimSpace(r.Platform))
		if r.Pattern == "" {
			return nil, eris.Errorf("classify: rule %d: empty pattern", i)
		}
		if !isPlatformKind(r.Kind) {
			return nil, eris.Errorf("classify: rule %d (%s): invalid category %q", i, r.Pattern, r.Kind)
		}
		if r.Platform == "" {
			return nil, eris.Errorf("classify: rule %d (%s): platform is required", i, r.Pattern)
		}
		out = append(out, r)
	}
	return &Table{rules: out}, nil
}

// LoadTable reads a YAML platform table of the form:
//
//	platforms:
//	  - pattern: facebook.com
//	    category: social_media
//	    platform: facebook
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "classify: read %s", path)
	}

	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "classify: parse %s", path)
	}
	if len(f.Platforms) == 0 {
		return nil, eris.Errorf("classify: %s has no platforms", path)
	}
	return NewTable(f.Platforms)
}

// Rules returns a copy of the table's rules in match order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

func isPlatformKind(k Kind) bool {
	switch k {
	case KindSocialMedia, KindReviewPlatform, KindDeliveryPlatform,
		KindReservationPlatform, KindOrderingPlatform:
		return true
	}
	return false
}

// DefaultTable returns the built-in platform table.
func DefaultTable() *Table {
	return defaultTable
}

var defaultTable = mustTable(defaultRules)

func mustTable(rules []Rule) *Table {
	t, err := NewTable(rules)
	if err != nil {
		panic(err)
	}
	return t
}

var defaultRules = []Rule{
	// Social
	{Pattern: "facebook.com", Kind: KindSocialMedia, Platform: "facebook"},
	{Pattern: "instagram.com", Kind: KindSocialMedia, Platform: "instagram"},
	{Pattern: "twitter.com", Kind: KindSocialMedia, Platform: "twitter"},
	{Pattern: "tiktok.com", Kind: KindSocialMedia, Platform: "tiktok", Display: "TikTok"},
	{Pattern: "linkedin.com", Kind: KindSocialMedia, Platform: "linkedin", Display: "LinkedIn"},
	{Pattern: "youtube.com", Kind: KindSocialMedia, Platform: "youtube", Display: "YouTube"},
	{Pattern: "pinterest.com", Kind: KindSocialMedia, Platform: "pinterest"},
	{Pattern: "nextdoor.com", Kind: KindSocialMedia, Platform: "nextdoor"},
	{Pattern: "linktr.ee", Kind: KindSocialMedia, Platform: "linktree"},

	// Reviews and directories
	{Pattern: "yelp.com", Kind: KindReviewPlatform, Platform: "yelp"},
	{Pattern: "tripadvisor.", Kind: KindReviewPlatform, Platform: "tripadvisor", Display: "TripAdvisor"},
	{Pattern: "foursquare.com", Kind: KindReviewPlatform, Platform: "foursquare"},
	{Pattern: "yellowpages.com", Kind: KindReviewPlatform, Platform: "yellowpages", Display: "Yellow Pages"},
	{Pattern: "bbb.org", Kind: KindReviewPlatform, Platform: "bbb", Display: "BBB"},
	{Pattern: "angi.com", Kind: KindReviewPlatform, Platform: "angi"},
	{Pattern: "thumbtack.com", Kind: KindReviewPlatform, Platform: "thumbtack"},
	{Pattern: "houzz.com", Kind: KindReviewPlatform, Platform: "houzz"},

	// Delivery
	{Pattern: "doordash.com", Kind: KindDeliveryPlatform, Platform: "doordash", Display: "DoorDash"},
	{Pattern: "ubereats.com", Kind: KindDeliveryPlatform, Platform: "ubereats", Display: "Uber Eats"},
	{Pattern: "grubhub.com", Kind: KindDeliveryPlatform, Platform: "grubhub"},
	{Pattern: "postmates.com", Kind: KindDeliveryPlatform, Platform: "postmates"},
	{Pattern: "seamless.com", Kind: KindDeliveryPlatform, Platform: "seamless"},

	// Reservations
	{Pattern: "opentable.", Kind: KindReservationPlatform, Platform: "opentable", Display: "OpenTable"},
	{Pattern: "resy.com", Kind: KindReservationPlatform, Platform: "resy"},
	{Pattern: "exploretock.com", Kind: KindReservationPlatform, Platform: "tock"},
	{Pattern: "sevenrooms.com", Kind: KindReservationPlatform, Platform: "sevenrooms", Display: "SevenRooms"},

	// Online ordering
	{Pattern: "toasttab.com", Kind: KindOrderingPlatform, Platform: "toast"},
	{Pattern: "chownow.com", Kind: KindOrderingPlatform, Platform: "chownow", Display: "ChowNow"},
	{Pattern: "square.site", Kind: KindOrderingPlatform, Platform: "square"},
	{Pattern: "clover.com", Kind: KindOrderingPlatform, Platform: "clover"},
	{Pattern: "order.online", Kind: KindOrderingPlatform, Platform: "doordash storefront", Display: "DoorDash Storefront"},
	{Pattern: "menufy.com", Kind: KindOrderingPlatform, Platform: "menufy"},
	{Pattern: "slicelife.com", Kind: KindOrderingPlatform, Platform: "slice"},
}
