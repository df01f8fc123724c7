// README: Evaluator answers "is this point inside the service area" from a cached config snapshot.
package geofence

import (
	"context"
	"errors"
	"log"
	"sync/atomic"

	"freshcart/internal/geo"
)

// Source is the settings store the evaluator reads and subscribes to.
type Source interface {
	Get(ctx context.Context) (Config, error)
	Save(ctx context.Context, cfg Config) error
	Subscribe(ctx context.Context) (<-chan Config, error)
}

type Evaluator struct {
	snapshot atomic.Pointer[Config]
	fallback Config
}

// NewEvaluator returns an evaluator that answers from fallback until Set or Run
// installs a loaded configuration.
func NewEvaluator(fallback Config) *Evaluator {
	if fallback.Validate() != nil {
		fallback = DefaultConfig
	}
	return &Evaluator{fallback: fallback}
}

func (e *Evaluator) Current() Config {
	if c := e.snapshot.Load(); c != nil {
		return *c
	}
	return e.fallback
}

// Loaded reports whether a configuration from the settings store has been installed.
func (e *Evaluator) Loaded() bool {
	return e.snapshot.Load() != nil
}

func (e *Evaluator) Set(cfg Config) {
	e.snapshot.Store(&cfg)
}

func (e *Evaluator) DistanceFromCenter(lat, lng float64) float64 {
	c := e.Current()
	return geo.HaversineKm(c.CenterLat, c.CenterLng, lat, lng)
}

// IsWithinGeofence answers from a single snapshot so a concurrent Set never
// mixes one config's center with another's radius.
func (e *Evaluator) IsWithinGeofence(lat, lng float64) bool {
	return e.Current().Contains(lat, lng)
}

// Run subscribes to src, installs the stored configuration, then keeps the
// snapshot current until ctx is cancelled or the subscription closes.
func (e *Evaluator) Run(ctx context.Context, src Source) error {
	updates, err := src.Subscribe(ctx)
	if err != nil {
		return err
	}
	cfg, err := src.Get(ctx)
	switch {
	case err == nil:
		e.Set(cfg)
	case errors.Is(err, ErrNotConfigured):
		log.Printf("geofence: no stored config, using default center=(%f,%f) radius=%.1fkm",
			e.fallback.CenterLat, e.fallback.CenterLng, e.fallback.RadiusKm)
	default:
		log.Printf("geofence: initial load failed: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cfg, ok := <-updates:
			if !ok {
				return nil
			}
			if cfg.Validate() != nil {
				log.Printf("geofence: ignoring invalid pushed config %+v", cfg)
				continue
			}
			e.Set(cfg)
		}
	}
}
