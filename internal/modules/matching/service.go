package matching

import (
	"context"
	"errors"
	"log"
	"sort"

	"freshcart/internal/geo"
	"freshcart/internal/modules/partner"
	"freshcart/internal/types"
)

var ErrInvalidQuery = errors.New("invalid nearby query")

// Registry is the part of the partner service the lookup reads.
type Registry interface {
	Get(ctx context.Context, id types.ID) (*partner.Partner, error)
	List(ctx context.Context) ([]*partner.Partner, error)
}

type Service struct {
	registry Registry
	index    Index
}

// NewService returns a lookup over the registry. index may be nil, in which
// case every query scans the registry.
func NewService(registry Registry, index Index) *Service {
	return &Service{registry: registry, index: index}
}

// Nearby lists assignable partners within radiusKm of p, nearest first.
// Index hits are re-read from the registry since the index trails claims.
func (s *Service) Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]Candidate, error) {
	if !p.Valid() || radiusKm < 0 || radiusKm > MaxRadiusKm {
		return nil, ErrInvalidQuery
	}
	if radiusKm == 0 {
		radiusKm = DefaultRadiusKm
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	if s.index != nil {
		hits, err := s.index.Nearby(ctx, p, radiusKm, limit*2)
		if err == nil {
			return s.confirm(ctx, hits, limit), nil
		}
		log.Printf("matching: index lookup failed, scanning registry: %v", err)
	}
	return s.scan(ctx, p, radiusKm, limit)
}

func (s *Service) confirm(ctx context.Context, hits []Candidate, limit int) []Candidate {
	out := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		cur, err := s.registry.Get(ctx, h.PartnerID)
		if err != nil || !assignable(*cur) {
			continue
		}
		h.Name = cur.Name
		out = append(out, h)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (s *Service) scan(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]Candidate, error) {
	all, err := s.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []Candidate
	for _, cur := range all {
		if !assignable(*cur) {
			continue
		}
		d := geo.HaversineKm(p.Lat, p.Lng, cur.CurrentLocation.Lat, cur.CurrentLocation.Lng)
		if d > radiusKm {
			continue
		}
		out = append(out, Candidate{PartnerID: cur.ID, Name: cur.Name, Position: *cur.CurrentLocation, DistanceKm: d})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].PartnerID < out[j].PartnerID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
