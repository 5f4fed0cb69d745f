package search

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadmap/internal/classify"
)

// LeadFilter decides which classified places become leads.
type LeadFilter string

// Supported filters.
const (
	FilterAll              LeadFilter = "all"
	FilterNoGenuineWebsite LeadFilter = "no_genuine_website"
	FilterNoWebsite        LeadFilter = "no_website"
)

// ParseLeadFilter validates a configured filter name. Empty means FilterAll.
func ParseLeadFilter(s string) (LeadFilter, error) {
	switch LeadFilter(s) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterNoGenuineWebsite, FilterNoWebsite:
		return LeadFilter(s), nil
	default:
		return "", eris.Errorf("search: unknown lead filter %q", s)
	}
}

// Accept reports whether a place with classification c passes the filter.
func (f LeadFilter) Accept(c classify.Classification) bool {
	switch f {
	case FilterNoGenuineWebsite:
		return !classify.IsGenuineWebsite(c)
	case FilterNoWebsite:
		return c.Kind == classify.KindNoWebsite
	default:
		return true
	}
}
