package places

import (
	"context"
	"fmt"
	"log"
	"sort"

	"googlemaps.github.io/maps"

	"github.com/firstaidvox/gateway/internal/model/triage"
)

const maxResults = 10

// Service searches nearby hospitals and pharmacies through the Google Maps
// Places API. Results are read-only facts handed to the transcript; nothing
// here mutates them afterwards.
type Service struct {
	client   *maps.Client
	radiusKm float64
}

// NewService builds the search client.
func NewService(apiKey string, radiusKm float64) (*Service, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("maps api key is empty")
	}
	if radiusKm <= 0 || radiusKm > 50 {
		return nil, fmt.Errorf("invalid search radius %.1f km: must be in (0, 50]", radiusKm)
	}

	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}

	return &Service{client: client, radiusKm: radiusKm}, nil
}

// SearchNearby returns hospitals and pharmacies around the location, sorted
// by distance, capped at ten entries.
func (s *Service) SearchNearby(ctx context.Context, loc triage.Location) ([]triage.Hospital, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}

	results := make([]triage.Hospital, 0, 2*maxResults)
	for _, placeType := range []maps.PlaceType{maps.PlaceTypeHospital, maps.PlaceTypePharmacy} {
		found, err := s.searchType(ctx, loc, placeType)
		if err != nil {
			// One failing facility type must not sink the other.
			log.Printf("[places] %s search failed: %v", placeType, err)
			continue
		}
		results = append(results, found...)
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("facility search returned no results near %.4f,%.4f", loc.Latitude, loc.Longitude)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].DistanceKm < results[j].DistanceKm
	})
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

func (s *Service) searchType(ctx context.Context, loc triage.Location, placeType maps.PlaceType) ([]triage.Hospital, error) {
	resp, err := s.client.NearbySearch(ctx, &maps.NearbySearchRequest{
		Location: &maps.LatLng{Lat: loc.Latitude, Lng: loc.Longitude},
		Radius:   uint(s.radiusKm * 1000),
		Type:     placeType,
	})
	if err != nil {
		return nil, err
	}

	kind := triage.PlaceHospital
	if placeType == maps.PlaceTypePharmacy {
		kind = triage.PlacePharmacy
	}

	hospitals := make([]triage.Hospital, 0, len(resp.Results))
	for _, place := range resp.Results {
		placeLoc := place.Geometry.Location
		hospitals = append(hospitals, triage.Hospital{
			Name:       place.Name,
			Address:    place.Vicinity,
			Latitude:   placeLoc.Lat,
			Longitude:  placeLoc.Lng,
			DistanceKm: round2(haversineKm(loc.Latitude, loc.Longitude, placeLoc.Lat, placeLoc.Lng)),
			PlaceID:    place.PlaceID,
			Rating:     float64(place.Rating),
			PlaceType:  kind,
		})
	}
	return hospitals, nil
}
