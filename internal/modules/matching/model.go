// README: Nearby idle-partner lookup for dispatchers choosing a manual assignment.
package matching

import (
	"context"

	"freshcart/internal/modules/partner"
	"freshcart/internal/types"
)

const (
	DefaultRadiusKm = 3.0
	MaxRadiusKm     = 50.0
	DefaultLimit    = 10
)

// Candidate is an assignable partner and its distance from the query point.
type Candidate struct {
	PartnerID  types.ID    `json:"partnerId"`
	Name       string      `json:"name"`
	Position   types.Point `json:"position"`
	DistanceKm float64     `json:"distanceKm"`
}

// Index keeps positions of assignable partners searchable by radius.
type Index interface {
	partner.Publisher
	Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]Candidate, error)
}

// assignable mirrors the registry's auto-assign filter plus a known position.
func assignable(p partner.Partner) bool {
	return p.IsActive && p.CurrentStatus == partner.StatusIdle && p.CurrentOrderID == nil && p.CurrentLocation != nil
}
