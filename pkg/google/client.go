// Package google is a minimal Google Places API (New) client for
// rectangle-restricted text search.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadmap/internal/model"
)

const defaultBaseURL = "https://places.googleapis.com/v1"

// MaxPageSize is the largest page the Places API returns per request.
const MaxPageSize = 20

var areaFieldMask = strings.Join([]string{
	"places.id",
	"places.displayName",
	"places.formattedAddress",
	"places.shortFormattedAddress",
	"places.nationalPhoneNumber",
	"places.websiteUri",
	"places.rating",
	"places.userRatingCount",
	"places.location",
	"nextPageToken",
}, ",")

// Client performs Google Places API operations.
type Client interface {
	SearchArea(ctx context.Context, req AreaSearchRequest) (*AreaSearchResponse, error)
}

// AreaSearchRequest is a text search restricted to a rectangle.
type AreaSearchRequest struct {
	TextQuery           string        `json:"textQuery"`
	LocationRestriction *LocationRect `json:"locationRestriction,omitempty"`
	PageSize            int           `json:"pageSize,omitempty"`
	PageToken           string        `json:"pageToken,omitempty"`
}

// LocationRect wraps a rectangle for locationRestriction.
type LocationRect struct {
	Rectangle Rectangle `json:"rectangle"`
}

// Rectangle is a low (south-west) / high (north-east) viewport.
type Rectangle struct {
	Low  LatLng `json:"low"`
	High LatLng `json:"high"`
}

// LatLng is a coordinate pair as the API encodes it.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RectFromBounds converts drawn-map bounds to a Places rectangle.
func RectFromBounds(b model.Bounds) *LocationRect {
	return &LocationRect{
		Rectangle: Rectangle{
			Low:  LatLng{Latitude: b.South, Longitude: b.West},
			High: LatLng{Latitude: b.North, Longitude: b.East},
		},
	}
}

// AreaSearchResponse is one page of results.
type AreaSearchResponse struct {
	Places        []Place `json:"places"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
}

// Place represents a place returned by the API. Rating and UserRatingCount
// are pointers because the API omits them for unrated places.
type Place struct {
	ID                    string      `json:"id"`
	DisplayName           DisplayName `json:"displayName"`
	FormattedAddress      string      `json:"formattedAddress,omitempty"`
	ShortFormattedAddress string      `json:"shortFormattedAddress,omitempty"`
	NationalPhoneNumber   string      `json:"nationalPhoneNumber,omitempty"`
	WebsiteURI            string      `json:"websiteUri,omitempty"`
	Rating                *float64    `json:"rating,omitempty"`
	UserRatingCount       *int        `json:"userRatingCount,omitempty"`
	Location              *LatLng     `json:"location,omitempty"`
}

// DisplayName holds the place's display name.
type DisplayName struct {
	Text string `json:"text"`
}

// Detail converts p to the provider-neutral place record.
func (p Place) Detail() model.PlaceDetail {
	d := model.PlaceDetail{
		PlaceID:          p.ID,
		Name:             p.DisplayName.Text,
		FormattedAddress: p.FormattedAddress,
		Vicinity:         p.ShortFormattedAddress,
		Phone:            p.NationalPhoneNumber,
		Website:          p.WebsiteURI,
		Rating:           p.Rating,
		UserRatingCount:  p.UserRatingCount,
	}
	if p.Location != nil {
		d.Location = &model.LatLng{Lat: p.Location.Latitude, Lng: p.Location.Longitude}
	}
	return d
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SearchArea(ctx context.Context, areaReq AreaSearchRequest) (*AreaSearchResponse, error) {
	if areaReq.PageSize <= 0 || areaReq.PageSize > MaxPageSize {
		areaReq.PageSize = MaxPageSize
	}

	body, err := json.Marshal(areaReq)
	if err != nil {
		return nil, eris.Wrap(err, "google: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchText", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "google: create request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", areaFieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "google: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "google: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("google: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result AreaSearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "google: unmarshal response")
	}

	return &result, nil
}
