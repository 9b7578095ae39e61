package api

import (
	"github.com/meowtion/sensor/internal/match"
	"github.com/meowtion/sensor/internal/oracle"
	"github.com/meowtion/sensor/internal/sightings"
)

// MatchRequest is the request body for POST /match.
type MatchRequest struct {
	UserImageBase64   string `json:"userImageBase64"`
	UserImageMimeType string `json:"userImageMimeType"`
}

// IdentifyRequest is the request body for POST /identify.
type IdentifyRequest struct {
	ImageBase64   string `json:"imageBase64"`
	ImageMimeType string `json:"imageMimeType"`
}

// MatchResponse is the match decision payload (aliased from the domain layer).
type MatchResponse = match.Result

// BreedResponse is the breed analysis payload (aliased from the domain layer).
type BreedResponse = oracle.BreedAnalysis

// CatSummary describes one roster cat in GET /cats.
type CatSummary struct {
	Name       string `json:"name"`
	ImageCount int    `json:"imageCount"`
}

// CatListResponse wraps the known-cat roster listing.
type CatListResponse struct {
	Cats []CatSummary `json:"cats"`
}

// CreateSightingRequest is the request body for POST /sightings.
// ImageBase64 is optional; when present only its digest is recorded.
type CreateSightingRequest struct {
	CatName     string   `json:"catName,omitempty"`
	UserName    string   `json:"userName,omitempty"`
	Caption     string   `json:"caption"`
	Lat         *float64 `json:"lat,omitempty"`
	Lng         *float64 `json:"lng,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
	ImageBase64 string   `json:"imageBase64,omitempty"`
}

// SightingListResponse wraps a paginated feed listing.
type SightingListResponse struct {
	Sightings []sightings.Sighting `json:"sightings"`
	Total     int                  `json:"total"`
}

// LocationListResponse wraps the campus map pins.
type LocationListResponse struct {
	Locations []sightings.Location `json:"locations"`
}
