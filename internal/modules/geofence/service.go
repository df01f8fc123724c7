// README: Geofence service validates and persists admin changes to the service area.
package geofence

import (
	"context"
	"time"
)

type Service struct {
	source    Source
	evaluator *Evaluator
}

func NewService(source Source, evaluator *Evaluator) *Service {
	return &Service{source: source, evaluator: evaluator}
}

func (s *Service) Evaluator() *Evaluator {
	return s.evaluator
}

func (s *Service) Current() Config {
	return s.evaluator.Current()
}

// Update saves a new service area. Subscribers (including this process's
// evaluator) pick it up through the settings subscription; the local snapshot
// is also set directly so the caller reads its own write.
func (s *Service) Update(ctx context.Context, cfg Config) (Config, error) {
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.UpdatedAt = time.Now().UTC()
	if err := s.source.Save(ctx, cfg); err != nil {
		return Config{}, err
	}
	s.evaluator.Set(cfg)
	return cfg, nil
}

func (s *Service) Contains(lat, lng float64) bool {
	return s.evaluator.IsWithinGeofence(lat, lng)
}
