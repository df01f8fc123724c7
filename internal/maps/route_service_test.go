package maps

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"googlemaps.github.io/maps"

	"freshcart/internal/types"
)

var (
	store    = types.Point{Lat: 13.0827, Lng: 80.2707}
	customer = types.Point{Lat: 13.0450, Lng: 80.2400}
)

type fakeDirections struct {
	routes []maps.Route
	err    error
	block  bool
	calls  atomic.Int32
	last   *maps.DirectionsRequest
}

func (f *fakeDirections) Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error) {
	f.calls.Add(1)
	f.last = r
	if f.block {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	return f.routes, nil, f.err
}

func route(summary string, legs ...time.Duration) maps.Route {
	r := maps.Route{Summary: summary, OverviewPolyline: maps.Polyline{Points: "poly-" + summary}}
	for _, d := range legs {
		r.Legs = append(r.Legs, &maps.Leg{Duration: d, Distance: maps.Distance{Meters: int(d / time.Second * 7)}})
	}
	return r
}

func fixedNow(svc *RouteService, at time.Time) {
	svc.now = func() time.Time { return at }
}

func TestFallbackETA(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		km   float64
		want time.Duration
	}{
		{4, 576 * time.Second},
		{0, 0},
		{25, time.Hour},
		{-3, 0},
	}
	for _, tc := range cases {
		est := FallbackETA(tc.km, now)
		if est.Duration != tc.want {
			t.Errorf("FallbackETA(%v) = %v, want %v", tc.km, est.Duration, tc.want)
		}
		if !est.Arrival.Equal(now.Add(tc.want)) || est.Source != SourceFallback {
			t.Errorf("FallbackETA(%v): unexpected estimate %+v", tc.km, est)
		}
	}
}

func TestCalculateETASumsLegsOfFirstRoute(t *testing.T) {
	fake := &fakeDirections{routes: []maps.Route{
		route("main", 4*time.Minute, 6*time.Minute),
		route("other", time.Minute),
	}}
	svc := NewRouteServiceWithClient(fake, time.Second)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	fixedNow(svc, now)

	est, err := svc.CalculateETA(context.Background(), store, customer)
	if err != nil {
		t.Fatalf("calculate eta: %v", err)
	}
	if est.Duration != 10*time.Minute || est.DistanceMeters != 600*7 {
		t.Fatalf("unexpected estimate %+v", est)
	}
	if !est.Arrival.Equal(now.Add(10*time.Minute)) || est.Source != SourceRoute {
		t.Fatalf("unexpected arrival/source %+v", est)
	}
	if fake.last.Mode != maps.TravelModeDriving || fake.last.Alternatives {
		t.Fatalf("unexpected request %+v", fake.last)
	}
}

func TestCalculateETAErrors(t *testing.T) {
	cases := []struct {
		name string
		svc  *RouteService
	}{
		{"no client", NewRouteServiceWithClient(nil, time.Second)},
		{"client error", NewRouteServiceWithClient(&fakeDirections{err: errors.New("REQUEST_DENIED")}, time.Second)},
		{"zero routes", NewRouteServiceWithClient(&fakeDirections{}, time.Second)},
		{"route without legs", NewRouteServiceWithClient(&fakeDirections{routes: []maps.Route{{Summary: "x"}}}, time.Second)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.svc.CalculateETA(context.Background(), store, customer); !errors.Is(err, ErrRoutingUnavailable) {
				t.Fatalf("expected ErrRoutingUnavailable, got %v", err)
			}
		})
	}
}

func TestCalculateETATimeout(t *testing.T) {
	svc := NewRouteServiceWithClient(&fakeDirections{block: true}, 20*time.Millisecond)
	started := time.Now()
	_, err := svc.CalculateETA(context.Background(), store, customer)
	if !errors.Is(err, ErrRoutingUnavailable) {
		t.Fatalf("expected ErrRoutingUnavailable, got %v", err)
	}
	if time.Since(started) > 2*time.Second {
		t.Fatalf("timeout not applied")
	}
}

// A routing backend returning HTTP 500 yields the straight-line fallback.
func TestEstimateWithFallbackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := maps.NewClient(maps.WithAPIKey("test-key"), maps.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("maps client: %v", err)
	}
	svc := NewRouteServiceWithClient(client, time.Second)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	fixedNow(svc, now)

	if _, err := svc.CalculateETA(context.Background(), store, customer); !errors.Is(err, ErrRoutingUnavailable) {
		t.Fatalf("expected ErrRoutingUnavailable, got %v", err)
	}

	// 4 km due north
	dest := types.Point{Lat: store.Lat + 4/111.195, Lng: store.Lng}
	est := svc.EstimateWithFallback(context.Background(), store, dest)
	if est.Source != SourceFallback {
		t.Fatalf("expected fallback source, got %s", est.Source)
	}
	if d := est.Duration - 576*time.Second; d < -2*time.Second || d > 2*time.Second {
		t.Fatalf("expected ~576s, got %v", est.Duration)
	}
	if est.DistanceMeters < 3990 || est.DistanceMeters > 4010 {
		t.Fatalf("expected ~4000m, got %d", est.DistanceMeters)
	}
}

func TestEstimateWithFallbackUsesLiveRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("mode") != "driving" {
			http.Error(w, "bad mode", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"OK","routes":[{"summary":"Anna Salai",
			"legs":[{"duration":{"value":600,"text":"10 mins"},"distance":{"value":4200,"text":"4.2 km"}}],
			"overview_polyline":{"points":"abc"}}]}`)
	}))
	defer srv.Close()

	client, err := maps.NewClient(maps.WithAPIKey("test-key"), maps.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("maps client: %v", err)
	}
	svc := NewRouteServiceWithClient(client, time.Second)
	est := svc.EstimateWithFallback(context.Background(), store, customer)
	if est.Source != SourceRoute || est.Duration != 10*time.Minute || est.DistanceMeters != 4200 {
		t.Fatalf("unexpected estimate %+v", est)
	}
}

func TestRouteAlternativesCapsAtThree(t *testing.T) {
	fake := &fakeDirections{routes: []maps.Route{
		route("a", time.Minute), route("b", 2*time.Minute), route("c", 3*time.Minute), route("d", 4*time.Minute),
	}}
	svc := NewRouteServiceWithClient(fake, time.Second)

	opts, err := svc.RouteAlternatives(context.Background(), store, customer)
	if err != nil {
		t.Fatalf("alternatives: %v", err)
	}
	if !fake.last.Alternatives {
		t.Fatalf("alternatives not requested")
	}
	if len(opts) != 3 {
		t.Fatalf("expected 3 options, got %d", len(opts))
	}
	if opts[1].Summary != "b" || opts[1].DurationSec != 120 || opts[1].Polyline != "poly-b" || opts[1].Index != 1 {
		t.Fatalf("unexpected option %+v", opts[1])
	}

	if _, err := NewRouteServiceWithClient(nil, 0).RouteAlternatives(context.Background(), store, customer); !errors.Is(err, ErrRoutingUnavailable) {
		t.Fatalf("expected ErrRoutingUnavailable without client, got %v", err)
	}
}

func TestNewRouteServiceWithoutKeyFallsBack(t *testing.T) {
	svc, err := NewRouteService("", 0)
	if err != nil {
		t.Fatalf("new route service: %v", err)
	}
	if est := svc.EstimateWithFallback(context.Background(), store, customer); est.Source != SourceFallback {
		t.Fatalf("expected fallback without api key, got %s", est.Source)
	}
}
