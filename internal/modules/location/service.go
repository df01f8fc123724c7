// README: Live tracking: partner location samples drive ETA updates, the RTDB mirror and the proximity push.
package location

import (
	"context"
	"errors"
	"log"
	"time"

	"freshcart/internal/maps"
	"freshcart/internal/metrics"
	"freshcart/internal/modules/order"
	"freshcart/internal/modules/partner"
	"freshcart/internal/types"
)

var ErrInvalidSample = errors.New("invalid location sample")

type Partners interface {
	Get(ctx context.Context, id types.ID) (*partner.Partner, error)
	UpdateLocation(ctx context.Context, partnerID types.ID, pos types.Point, at time.Time) error
}

type Orders interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
	ListByStatus(ctx context.Context, status order.Status) ([]*order.Order, error)
	ApplyETA(ctx context.Context, orderID types.ID, eta order.ETAUpdate) error
}

// ETAEngine is satisfied by *maps.RouteService.
type ETAEngine interface {
	EstimateWithFallback(ctx context.Context, origin, dest types.Point) maps.Estimate
}

// Mirror publishes live positions for the customer and admin maps.
type Mirror interface {
	PartnerLocation(ctx context.Context, partnerID types.ID, pos types.Point, at time.Time) error
	OrderTracking(ctx context.Context, o *order.Order, pos types.Point, est maps.Estimate) error
}

type Pusher interface {
	AlmostThere(ctx context.Context, o *order.Order, est maps.Estimate) error
}

type Service struct {
	partners  Partners
	orders    Orders
	eta       ETAEngine
	latch     Latch
	snapshots SnapshotStore
	mirror    Mirror
	pusher    Pusher
	timeout   time.Duration
	now       func() time.Time
}

func NewService(partners Partners, orders Orders, eta ETAEngine, latch Latch) *Service {
	if latch == nil {
		latch = NewMemoryLatch()
	}
	return &Service{
		partners: partners,
		orders:   orders,
		eta:      eta,
		latch:    latch,
		timeout:  maps.DefaultTimeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) SetSnapshotStore(store SnapshotStore) { s.snapshots = store }
func (s *Service) SetMirror(m Mirror) { s.mirror = m }
func (s *Service) SetPusher(p Pusher) { s.pusher = p }

func (s *Service) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// RecordSample stores a partner position and, when the partner is carrying an
// order, refreshes that order's ETA from it.
func (s *Service) RecordSample(ctx context.Context, smp Sample) (*Tracking, error) {
	if smp.PartnerID == "" || !smp.Point.Valid() {
		return nil, ErrInvalidSample
	}
	if now := s.now(); smp.RecordedAt.IsZero() || smp.RecordedAt.After(now.Add(MaxClockSkew)) {
		smp.RecordedAt = now
	}
	if err := s.partners.UpdateLocation(ctx, smp.PartnerID, smp.Point, smp.RecordedAt); err != nil {
		return nil, err
	}
	p, err := s.partners.Get(ctx, smp.PartnerID)
	if err != nil {
		return nil, err
	}

	s.appendSnapshot(ctx, p, smp)
	if s.mirror != nil {
		mctx, cancel := context.WithTimeout(ctx, s.timeout)
		if err := s.mirror.PartnerLocation(mctx, p.ID, smp.Point, smp.RecordedAt); err != nil {
			log.Printf("tracking: mirror location of %s: %v", p.ID, err)
		}
		cancel()
	}

	if p.CurrentOrderID == nil {
		return &Tracking{}, nil
	}
	o, err := s.orders.Get(ctx, *p.CurrentOrderID)
	if errors.Is(err, order.ErrNotFound) {
		return &Tracking{}, nil
	}
	if err != nil {
		return nil, err
	}
	if !trackable(o) {
		return &Tracking{OrderID: o.ID}, nil
	}
	return s.track(ctx, o, smp.Point, smp.RecordedAt)
}

// Refresh recomputes the ETA of every order out for delivery from its
// partner's last known position, returning how many estimates were applied.
func (s *Service) Refresh(ctx context.Context) (int, error) {
	orders, err := s.orders.ListByStatus(ctx, order.StatusOutForDelivery)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, o := range orders {
		if !trackable(o) || o.DeliveryPartner == nil {
			continue
		}
		p, err := s.partners.Get(ctx, o.DeliveryPartner.ID)
		if err != nil {
			log.Printf("tracking: refresh %s: load partner %s: %v", o.ID, o.DeliveryPartner.ID, err)
			continue
		}
		if p.CurrentLocation == nil || !p.Holds(o.ID) {
			continue
		}
		res, err := s.track(ctx, o, *p.CurrentLocation, s.now())
		if err != nil {
			log.Printf("tracking: refresh %s: %v", o.ID, err)
			continue
		}
		if res.Applied {
			applied++
		}
	}
	return applied, nil
}

// RunRefresher calls Refresh on a fixed interval until ctx is cancelled.
func (s *Service) RunRefresher(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(ctx); err != nil {
				log.Printf("tracking: refresh failed: %v", err)
			}
		}
	}
}

// History returns the recorded positions for an order, oldest first.
func (s *Service) History(ctx context.Context, orderID types.ID, limit int) ([]Snapshot, error) {
	if s.snapshots == nil {
		return nil, nil
	}
	return s.snapshots.ListByOrder(ctx, orderID, limit)
}

func (s *Service) track(ctx context.Context, o *order.Order, pos types.Point, sampledAt time.Time) (*Tracking, error) {
	ectx, cancel := context.WithTimeout(ctx, s.timeout)
	est := s.eta.EstimateWithFallback(ectx, pos, *o.DeliveryCoordinates)
	cancel()

	res := &Tracking{OrderID: o.ID, Estimate: &est}
	err := s.orders.ApplyETA(ctx, o.ID, order.ETAUpdate{
		Arrival:     est.Arrival,
		DurationSec: int(est.Duration / time.Second),
		DistanceM:   est.DistanceMeters,
		Source:      order.ETASource(est.Source),
		SampledAt:   sampledAt,
	})
	if errors.Is(err, order.ErrStaleUpdate) {
		res.Stale = true
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	res.Applied = true

	if s.mirror != nil {
		mctx, cancel := context.WithTimeout(ctx, s.timeout)
		if err := s.mirror.OrderTracking(mctx, o, pos, est); err != nil {
			log.Printf("tracking: mirror order %s: %v", o.ID, err)
		}
		cancel()
	}
	if near(est) {
		res.AlmostThere = s.almostThere(ctx, o, est)
	}
	return res, nil
}

// almostThere sends the proximity push if this caller wins the latch for the
// order's current out_for_delivery epoch.
func (s *Service) almostThere(ctx context.Context, o *order.Order, est maps.Estimate) bool {
	won, err := s.latch.Acquire(ctx, o.ID, o.StatusVersion)
	if err != nil {
		log.Printf("tracking: proximity latch for %s: %v", o.ID, err)
		return false
	}
	if !won {
		return false
	}
	metrics.ProximityAlerts.Inc()
	if s.pusher != nil {
		pctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if err := s.pusher.AlmostThere(pctx, o, est); err != nil {
			log.Printf("tracking: almost-there push for %s: %v", o.ID, err)
		}
	}
	return true
}

func (s *Service) appendSnapshot(ctx context.Context, p *partner.Partner, smp Sample) {
	if s.snapshots == nil {
		return
	}
	snap := &Snapshot{
		PartnerID:  p.ID,
		OrderID:    p.CurrentOrderID,
		Position:   smp.Point,
		RecordedAt: smp.RecordedAt,
	}
	if err := s.snapshots.AppendSnapshot(ctx, snap); err != nil {
		log.Printf("tracking: snapshot for %s: %v", p.ID, err)
	}
}

func trackable(o *order.Order) bool {
	return o.Status == order.StatusOutForDelivery && o.DeliveryCoordinates != nil
}
