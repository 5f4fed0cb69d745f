// Package classify maps a business's listed website to the kind of web
// presence it represents: none, a third-party platform page, or a site the
// business owns.
package classify

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind is the closed set of website categories.
type Kind string

const (
	KindNoWebsite           Kind = "no_website"
	KindSocialMedia         Kind = "social_media"
	KindReviewPlatform      Kind = "review_platform"
	KindDeliveryPlatform    Kind = "delivery_platform"
	KindReservationPlatform Kind = "reservation_platform"
	KindOrderingPlatform    Kind = "ordering_platform"
	KindRealWebsite         Kind = "real_website"
)

// Classification is the result of classifying one website URL. Platform is
// set for the third-party kinds only.
type Classification struct {
	Kind     Kind   `json:"kind"`
	Platform string `json:"platform,omitempty"`
	Display  string `json:"-"`
}

// Label returns the short text shown in a map popup.
func (c Classification) Label() string {
	name := c.Display
	if name == "" {
		name = cases.Title(language.English).String(c.Platform)
	}
	switch c.Kind {
	case KindNoWebsite:
		return "No website"
	case KindSocialMedia:
		return name + " page"
	case KindReviewPlatform:
		return name + " listing"
	case KindDeliveryPlatform:
		return name + " delivery page"
	case KindReservationPlatform:
		return "Reservations via " + name
	case KindOrderingPlatform:
		return "Online ordering via " + name
	default:
		return "Website"
	}
}

// IsGenuineWebsite reports whether the business has a website of its own.
func IsGenuineWebsite(c Classification) bool {
	return c.Kind == KindRealWebsite
}

// Classify classifies url against the built-in platform table.
func Classify(url string) Classification {
	return defaultTable.Classify(url)
}

// Classify returns the category of url. An empty url is always
// KindNoWebsite; otherwise the first rule whose pattern is contained in the
// lower-cased url wins, and a url matching no rule is KindRealWebsite.
func (t *Table) Classify(url string) Classification {
	url = strings.TrimSpace(url)
	if url == "" {
		return Classification{Kind: KindNoWebsite}
	}

	lower := strings.ToLower(url)
	for _, r := range t.rules {
		if strings.Contains(lower, r.Pattern) {
			return Classification{Kind: r.Kind, Platform: r.Platform, Display: r.Display}
		}
	}
	return Classification{Kind: KindRealWebsite}
}
