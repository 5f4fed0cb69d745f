package model

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is the rectangle a user draws on the map.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// PlaceDetail is a single result from the places provider. Every field is
// optional; missing values are empty strings or nil pointers.
type PlaceDetail struct {
	PlaceID          string   `json:"place_id,omitempty"`
	Name             string   `json:"name,omitempty"`
	FormattedAddress string   `json:"formatted_address,omitempty"`
	Vicinity         string   `json:"vicinity,omitempty"`
	Phone            string   `json:"phone,omitempty"`
	Website          string   `json:"website,omitempty"`
	Rating           *float64 `json:"rating,omitempty"`
	UserRatingCount  *int     `json:"user_rating_count,omitempty"`
	Location         *LatLng  `json:"location,omitempty"`
}

// Address returns the formatted address, falling back to the vicinity string.
func (d PlaceDetail) Address() string {
	if d.FormattedAddress != "" {
		return d.FormattedAddress
	}
	return d.Vicinity
}
