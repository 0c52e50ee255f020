package triage

import (
	"errors"
	"fmt"
)

// ErrInvalidLocation marks coordinates outside the decimal-degree ranges.
var ErrInvalidLocation = errors.New("invalid location")

// PlaceType distinguishes the two facility kinds the search returns.
type PlaceType string

const (
	PlaceHospital PlaceType = "hospital"
	PlacePharmacy PlaceType = "pharmacy"
)

// Hospital is a facility search result. It is sourced entirely from the
// places backend and never mutated after construction.
type Hospital struct {
	Name       string    `json:"name"`
	Address    string    `json:"address"`
	Latitude   float64   `json:"latitude,omitempty"`
	Longitude  float64   `json:"longitude,omitempty"`
	DistanceKm float64   `json:"distance_km"`
	PlaceID    string    `json:"place_id"`
	Rating     float64   `json:"rating,omitempty"`
	PlaceType  PlaceType `json:"place_type"`
}

// Location carries user coordinates for the facility search.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks the coordinates fall inside the valid decimal-degree ranges.
func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v must be between -90 and 90", ErrInvalidLocation, l.Latitude)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v must be between -180 and 180", ErrInvalidLocation, l.Longitude)
	}
	return nil
}
