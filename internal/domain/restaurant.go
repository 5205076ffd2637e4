package domain

import "time"

// LatLng is a geographic coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Restaurant mirrors a catalog entry from the upstream server.
// ID is the server-assigned primary key and is globally unique and stable
// across the local store and the server. Restaurants are created locally
// when first fetched (or when a favorite toggle writes through) and updated
// whenever a fresher server copy arrives; the client never deletes them.
type Restaurant struct {
	ID           int64             `json:"id"`
	Name         string            `json:"name"`
	Neighborhood string            `json:"neighborhood"`
	CuisineType  string            `json:"cuisine_type"`
	Address      string            `json:"address"`
	LatLng       LatLng            `json:"latlng"`
	// Photograph is the base filename stem; responsive variants derive
	// -small/-medium/-large names from it.
	Photograph     string            `json:"photograph,omitempty"`
	OperatingHours map[string]string `json:"operating_hours,omitempty"`
	// IsFavorite is locally mutable and written through to the server
	// optimistically; it may transiently diverge after a failed PUT.
	IsFavorite bool      `json:"is_favorite"`
	CreatedAt  time.Time `json:"createdAt,omitzero"`
	UpdatedAt  time.Time `json:"updatedAt,omitzero"`
}

// FilterAll is the sentinel value that disables a filter stage.
const FilterAll = "all"
