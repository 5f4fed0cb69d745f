package model

// Lead is a normalized, deduplicated business record ready for export.
// Rating and Reviews are display text; empty means the provider had no value.
type Lead struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Rating  string `json:"rating"`
	Reviews string `json:"reviews"`
	MapsURL string `json:"maps_url,omitempty"`
}

// Marker is what the map draws for one accepted place.
type Marker struct {
	Lead     Lead    `json:"lead"`
	Website  string  `json:"website,omitempty"`
	Location *LatLng `json:"location,omitempty"`
	// Category is the website classification kind, Platform the matched
	// platform if any.
	Category string `json:"category"`
	Platform string `json:"platform,omitempty"`
	Label    string `json:"label"`
	Genuine  bool   `json:"genuine_website"`
}
