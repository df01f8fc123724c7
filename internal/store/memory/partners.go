// README: In-process partner repository with the same claim guarantees as the Postgres store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"freshcart/internal/modules/partner"
	"freshcart/internal/types"
)

type Partners struct {
	mu       sync.Mutex
	partners map[types.ID]*partner.Partner
}

var _ partner.Repository = (*Partners)(nil)

func NewPartners() *Partners {
	return &Partners{partners: make(map[types.ID]*partner.Partner)}
}

func (s *Partners) Create(_ context.Context, p *partner.Partner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.partners[p.ID]; ok {
		return partner.ErrDuplicate
	}
	s.partners[p.ID] = clonePartner(p)
	return nil
}

func (s *Partners) Get(_ context.Context, id types.ID) (*partner.Partner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partners[id]
	if !ok {
		return nil, partner.ErrNotFound
	}
	return clonePartner(p), nil
}

func (s *Partners) List(_ context.Context) ([]*partner.Partner, error) {
	return s.filter(func(*partner.Partner) bool { return true }, byJoined), nil
}

func (s *Partners) ListIdle(_ context.Context) ([]*partner.Partner, error) {
	return s.filter(func(p *partner.Partner) bool {
		return p.IsActive && p.CurrentStatus == partner.StatusIdle && p.CurrentOrderID == nil
	}, byDeliveries), nil
}

func (s *Partners) ListBusy(_ context.Context) ([]*partner.Partner, error) {
	return s.filter(func(p *partner.Partner) bool { return p.CurrentOrderID != nil }, byID), nil
}

func (s *Partners) HolderOf(_ context.Context, orderID types.ID) (*partner.Partner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.holderLocked(orderID); p != nil {
		return clonePartner(p), nil
	}
	return nil, partner.ErrNotFound
}

func (s *Partners) Claim(_ context.Context, partnerID, orderID types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partners[partnerID]
	if !ok || p.CurrentOrderID != nil || !p.IsActive || p.CurrentStatus != partner.StatusIdle {
		return false, nil
	}
	if s.holderLocked(orderID) != nil {
		return false, partner.ErrOrderAlreadyAssigned
	}
	id := orderID
	p.CurrentOrderID = &id
	p.CurrentStatus = partner.StatusAssigned
	return true, nil
}

func (s *Partners) Release(_ context.Context, partnerID types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partners[partnerID]
	if !ok {
		return partner.ErrNotFound
	}
	p.CurrentOrderID = nil
	if p.CurrentStatus != partner.StatusOffline {
		p.CurrentStatus = partner.StatusIdle
	}
	return nil
}

func (s *Partners) ReleaseIfHolding(_ context.Context, partnerID, orderID types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partners[partnerID]
	if !ok || !p.Holds(orderID) {
		return false, nil
	}
	p.CurrentOrderID = nil
	p.CurrentStatus = partner.StatusIdle
	return true, nil
}

func (s *Partners) SetStatusIfHolding(_ context.Context, partnerID, orderID types.ID, status partner.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partners[partnerID]
	if !ok || !p.Holds(orderID) {
		return false, nil
	}
	p.CurrentStatus = status
	return true, nil
}

func (s *Partners) CompleteDelivery(_ context.Context, partnerID, orderID types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partners[partnerID]
	if !ok || !p.Holds(orderID) {
		return false, nil
	}
	p.CurrentOrderID = nil
	p.CurrentStatus = partner.StatusIdle
	p.TotalDeliveries++
	return true, nil
}

func (s *Partners) SetActive(_ context.Context, partnerID types.ID, active bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partners[partnerID]
	if !ok {
		return false, partner.ErrNotFound
	}
	if !active && p.CurrentOrderID != nil {
		return false, nil
	}
	p.IsActive = active
	return true, nil
}

func (s *Partners) SetAvailability(_ context.Context, partnerID types.ID, status partner.Status) (bool, error) {
	if status != partner.StatusIdle && status != partner.StatusOffline {
		return false, partner.ErrBadRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partners[partnerID]
	if !ok {
		return false, partner.ErrNotFound
	}
	if p.CurrentOrderID != nil {
		return false, nil
	}
	p.CurrentStatus = status
	return true, nil
}

func (s *Partners) UpdateLocation(_ context.Context, partnerID types.ID, pos types.Point, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partners[partnerID]
	if !ok {
		return partner.ErrNotFound
	}
	p.CurrentLocation = &pos
	p.LocationUpdatedAt = &at
	return nil
}

func (s *Partners) holderLocked(orderID types.ID) *partner.Partner {
	for _, p := range s.partners {
		if p.Holds(orderID) {
			return p
		}
	}
	return nil
}

func (s *Partners) filter(keep func(*partner.Partner) bool, less func(a, b *partner.Partner) bool) []*partner.Partner {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*partner.Partner
	for _, p := range s.partners {
		if keep(p) {
			out = append(out, clonePartner(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func byID(a, b *partner.Partner) bool { return a.ID < b.ID }

func byDeliveries(a, b *partner.Partner) bool {
	if a.TotalDeliveries != b.TotalDeliveries {
		return a.TotalDeliveries < b.TotalDeliveries
	}
	return a.ID < b.ID
}

func byJoined(a, b *partner.Partner) bool {
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.Before(b.JoinedAt)
	}
	return a.ID < b.ID
}

func clonePartner(p *partner.Partner) *partner.Partner {
	c := *p
	if p.CurrentOrderID != nil {
		id := *p.CurrentOrderID
		c.CurrentOrderID = &id
	}
	if p.CurrentLocation != nil {
		loc := *p.CurrentLocation
		c.CurrentLocation = &loc
	}
	return &c
}
