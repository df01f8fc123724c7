// README: In-process order repository; mirrors the conditional writes of the Postgres store.
package memory

import (
	"context"
	"sort"
	"sync"

	"freshcart/internal/modules/order"
	"freshcart/internal/types"
)

type Orders struct {
	mu     sync.Mutex
	orders map[types.ID]*order.Order
	events map[types.ID][]order.Event
	nextID int64
}

var _ order.Repository = (*Orders)(nil)

func NewOrders() *Orders {
	return &Orders{
		orders: make(map[types.ID]*order.Order),
		events: make(map[types.ID][]order.Event),
	}
}

func (s *Orders) Create(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (s *Orders) Get(_ context.Context, id types.ID) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *Orders) ListByStatus(_ context.Context, status order.Status) ([]*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*order.Order
	for _, o := range s.orders {
		if o.Status == status {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Orders) UpdateStatus(_ context.Context, id types.ID, from order.Status, version int, u order.Update) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != from || o.StatusVersion != version {
		return false, nil
	}
	o.Status = u.To
	o.StatusVersion++
	o.DeliveryOTP = u.OTP
	if u.CancelledReason != "" {
		o.CancelledReason = u.CancelledReason
	}
	o.EstimatedArrival = nil
	o.EstimatedDuration = 0
	o.EstimatedDistance = 0
	o.ETASource = ""
	o.LastLocationUpdate = nil

	at := u.At
	switch u.To {
	case order.StatusConfirmed:
		o.ConfirmedAt = &at
	case order.StatusPreparing:
		o.PreparingAt = &at
	case order.StatusOutForDelivery:
		o.DispatchedAt = &at
	case order.StatusReachedDestination:
		o.ReachedAt = &at
	case order.StatusDelivered:
		o.DeliveredAt = &at
	case order.StatusCancelled:
		o.CancelledAt = &at
	}
	return true, nil
}

func (s *Orders) AttachPartner(_ context.Context, id types.ID, snap order.PartnerSnapshot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || !o.Status.Staffed() || o.DeliveryPartner != nil {
		return false, nil
	}
	o.DeliveryPartner = &snap
	return true, nil
}

func (s *Orders) DetachPartner(_ context.Context, id, partnerID types.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status.Terminal() || !o.AssignedTo(partnerID) {
		return false, nil
	}
	o.DeliveryPartner = nil
	return true, nil
}

func (s *Orders) SetOTP(_ context.Context, id types.ID, otp string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != order.StatusReachedDestination {
		return false, nil
	}
	o.DeliveryOTP = otp
	return true, nil
}

func (s *Orders) ConsumeOTP(_ context.Context, id types.ID, otp string, u order.Update) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != order.StatusReachedDestination || o.DeliveryOTP == "" || o.DeliveryOTP != otp {
		return false, nil
	}
	at := u.At
	o.Status = u.To
	o.StatusVersion++
	o.DeliveryOTP = ""
	o.DeliveredAt = &at
	return true, nil
}

func (s *Orders) ApplyETA(_ context.Context, id types.ID, eta order.ETAUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != order.StatusOutForDelivery {
		return false, nil
	}
	if o.LastLocationUpdate != nil && !o.LastLocationUpdate.Before(eta.SampledAt) {
		return false, nil
	}
	arrival, sampled := eta.Arrival, eta.SampledAt
	o.EstimatedArrival = &arrival
	o.EstimatedDuration = eta.DurationSec
	o.EstimatedDistance = eta.DistanceM
	o.ETASource = eta.Source
	o.LastLocationUpdate = &sampled
	return true, nil
}

func (s *Orders) AppendEvent(_ context.Context, e *order.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	s.events[e.OrderID] = append(s.events[e.OrderID], *e)
	return nil
}

func (s *Orders) ListEvents(_ context.Context, id types.ID) ([]order.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]order.Event(nil), s.events[id]...), nil
}

func (s *Orders) OrderState(_ context.Context, id types.ID) (bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, false, nil
	}
	return true, o.Status.Terminal(), nil
}

func cloneOrder(o *order.Order) *order.Order {
	c := *o
	c.Items = append([]order.Item(nil), o.Items...)
	if o.DeliveryCoordinates != nil {
		p := *o.DeliveryCoordinates
		c.DeliveryCoordinates = &p
	}
	if o.DeliveryPartner != nil {
		p := *o.DeliveryPartner
		c.DeliveryPartner = &p
	}
	// time pointers are never mutated in place, sharing them is safe
	return &c
}
