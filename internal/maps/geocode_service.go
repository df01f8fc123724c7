// README: Resolves a typed delivery address to coordinates with the Google Geocoding API.
package maps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"freshcart/internal/types"
)

var ErrAddressNotFound = errors.New("address not found")

// Geocoding is satisfied by *maps.Client.
type Geocoding interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

type GeocodeService struct {
	client Geocoding
	region string
}

func NewGeocodeService(apiKey, region string) (*GeocodeService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return NewGeocodeServiceWithClient(client, region), nil
}

func NewGeocodeServiceWithClient(client Geocoding, region string) *GeocodeService {
	return &GeocodeService{client: client, region: region}
}

// Locate returns the coordinates of the best match. Partial matches are
// accepted only when they are the sole result.
func (s *GeocodeService) Locate(ctx context.Context, address string) (types.Point, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return types.Point{}, ErrAddressNotFound
	}
	results, err := s.client.Geocode(ctx, &maps.GeocodingRequest{Address: address, Region: s.region})
	if err != nil {
		return types.Point{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	var best *maps.GeocodingResult
	for i := range results {
		if !results[i].PartialMatch {
			best = &results[i]
			break
		}
	}
	if best == nil && len(results) == 1 {
		best = &results[0]
	}
	if best == nil {
		return types.Point{}, ErrAddressNotFound
	}
	loc := best.Geometry.Location
	return types.Point{Lat: loc.Lat, Lng: loc.Lng}, nil
}
