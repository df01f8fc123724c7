// README: ETA engine: live driving estimates from Google Directions with a constant-speed fallback.
package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"googlemaps.github.io/maps"

	"freshcart/internal/geo"
	"freshcart/internal/metrics"
	"freshcart/internal/types"
)

const (
	// FallbackSpeedKmh is the assumed average urban delivery speed.
	FallbackSpeedKmh = 25.0
	DefaultTimeout   = 10 * time.Second
	maxAlternatives  = 3
)

var ErrRoutingUnavailable = errors.New("routing service unavailable")

type Source string

const (
	SourceRoute    Source = "route"
	SourceFallback Source = "fallback"
)

// Directions is satisfied by *maps.Client.
type Directions interface {
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
}

type Estimate struct {
	Duration       time.Duration
	DistanceMeters int
	Arrival        time.Time
	Source         Source
}

func (e Estimate) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		DurationSec    int       `json:"durationSec"`
		DistanceMeters int       `json:"distanceMeters"`
		Arrival        time.Time `json:"arrival"`
		Source         Source    `json:"source"`
	}{int(e.Duration / time.Second), e.DistanceMeters, e.Arrival, e.Source})
}

type RouteOption struct {
	Index          int    `json:"index"`
	Summary        string `json:"summary"`
	DurationSec    int    `json:"durationSec"`
	DistanceMeters int    `json:"distanceMeters"`
	Polyline       string `json:"polyline"`
}

// RouteService handles interactions with Google Maps API. A service without a
// client always falls back.
type RouteService struct {
	client  Directions
	timeout time.Duration
	now     func() time.Time
}

// NewRouteService creates a RouteService with the given API key. An empty key
// yields a fallback-only service.
func NewRouteService(apiKey string, timeout time.Duration) (*RouteService, error) {
	if apiKey == "" {
		return NewRouteServiceWithClient(nil, timeout), nil
	}
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return NewRouteServiceWithClient(client, timeout), nil
}

func NewRouteServiceWithClient(client Directions, timeout time.Duration) *RouteService {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RouteService{client: client, timeout: timeout, now: time.Now}
}

// CalculateETA asks for a driving route and sums the legs of the first one.
func (s *RouteService) CalculateETA(ctx context.Context, origin, dest types.Point) (Estimate, error) {
	routes, err := s.directions(ctx, origin, dest, false)
	if err != nil {
		return Estimate{}, err
	}
	dur, meters := sumLegs(routes[0])
	metrics.ETAComputations.WithLabelValues(string(SourceRoute)).Inc()
	return Estimate{
		Duration:       dur,
		DistanceMeters: meters,
		Arrival:        s.now().Add(dur),
		Source:         SourceRoute,
	}, nil
}

// FallbackETA estimates travel time at FallbackSpeedKmh.
func FallbackETA(distanceKm float64, now time.Time) Estimate {
	if distanceKm < 0 {
		distanceKm = 0
	}
	seconds := math.Round(distanceKm / FallbackSpeedKmh * 3600)
	dur := time.Duration(seconds) * time.Second
	return Estimate{
		Duration:       dur,
		DistanceMeters: int(math.Round(distanceKm * 1000)),
		Arrival:        now.Add(dur),
		Source:         SourceFallback,
	}
}

// EstimateWithFallback returns the live estimate, or the straight-line
// fallback when routing is unavailable. It never fails.
func (s *RouteService) EstimateWithFallback(ctx context.Context, origin, dest types.Point) Estimate {
	est, err := s.CalculateETA(ctx, origin, dest)
	if err == nil {
		return est
	}
	if s.client != nil {
		log.Printf("eta: falling back to straight-line estimate: %v", err)
	}
	metrics.ETAComputations.WithLabelValues(string(SourceFallback)).Inc()
	return FallbackETA(geo.HaversineKm(origin.Lat, origin.Lng, dest.Lat, dest.Lng), s.now())
}

// RouteAlternatives lists up to three candidate routes for display.
// Choosing one has no effect on the order.
func (s *RouteService) RouteAlternatives(ctx context.Context, origin, dest types.Point) ([]RouteOption, error) {
	routes, err := s.directions(ctx, origin, dest, true)
	if err != nil {
		return nil, err
	}
	if len(routes) > maxAlternatives {
		routes = routes[:maxAlternatives]
	}
	out := make([]RouteOption, len(routes))
	for i, r := range routes {
		dur, meters := sumLegs(r)
		out[i] = RouteOption{
			Index:          i,
			Summary:        r.Summary,
			DurationSec:    int(dur / time.Second),
			DistanceMeters: meters,
			Polyline:       r.OverviewPolyline.Points,
		}
	}
	return out, nil
}

func (s *RouteService) directions(ctx context.Context, origin, dest types.Point, alternatives bool) ([]maps.Route, error) {
	if s.client == nil {
		return nil, ErrRoutingUnavailable
	}
	if !origin.Valid() || !dest.Valid() {
		return nil, fmt.Errorf("%w: invalid coordinates", ErrRoutingUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	routes, _, err := s.client.Directions(ctx, &maps.DirectionsRequest{
		Origin:       latLng(origin),
		Destination:  latLng(dest),
		Mode:         maps.TravelModeDriving,
		Alternatives: alternatives,
	})
	metrics.RouteLatency.Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRoutingUnavailable, err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return nil, fmt.Errorf("%w: no route found", ErrRoutingUnavailable)
	}
	return routes, nil
}

func sumLegs(r maps.Route) (time.Duration, int) {
	var dur time.Duration
	var meters int
	for _, leg := range r.Legs {
		if leg == nil {
			continue
		}
		dur += leg.Duration
		meters += leg.Meters
	}
	return dur, meters
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}
