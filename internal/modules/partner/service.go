// README: Partner registry: atomic claim, release, lifecycle status and stale-assignment sweep.
package partner

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"freshcart/internal/metrics"
	"freshcart/internal/types"
)

// OrderChecker reports whether an order exists and whether it is terminal, and
// detaches a released partner from the order it was driving.
// The order store implements it; the registry never imports the order module.
type OrderChecker interface {
	OrderState(ctx context.Context, id types.ID) (exists, terminal bool, err error)
	DetachPartner(ctx context.Context, orderID, partnerID types.ID) (bool, error)
}

// Publisher receives every partner state change for the live feed.
type Publisher interface {
	PartnerChanged(ctx context.Context, p Partner)
}

type Service struct {
	store  Repository
	orders OrderChecker
	pub    Publisher
}

func NewService(store Repository, orders OrderChecker, pub Publisher) *Service {
	return &Service{store: store, orders: orders, pub: pub}
}

func (s *Service) Enroll(ctx context.Context, cmd EnrollCommand) (*Partner, error) {
	cmd.Name = strings.TrimSpace(cmd.Name)
	cmd.Phone = strings.TrimSpace(cmd.Phone)
	if cmd.Name == "" || cmd.Phone == "" {
		return nil, ErrBadRequest
	}
	if cmd.VehicleType == "" {
		cmd.VehicleType = VehicleBike
	}
	if !cmd.VehicleType.Valid() {
		return nil, ErrBadRequest
	}
	if cmd.Rating < 0 || cmd.Rating > 5 {
		return nil, ErrBadRequest
	}
	id := cmd.ID
	if id == "" {
		id = types.NewID()
	}
	p := &Partner{
		ID:            id,
		Name:          cmd.Name,
		Phone:         cmd.Phone,
		Email:         strings.TrimSpace(cmd.Email),
		VehicleType:   cmd.VehicleType,
		IsActive:      true,
		CurrentStatus: StatusIdle,
		Rating:        cmd.Rating,
		JoinedAt:      time.Now().UTC(),
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	s.publish(ctx, p.ID)
	return p, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Partner, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*Partner, error) {
	return s.store.List(ctx)
}

// AutoAssign claims one idle active partner for orderID, preferring the
// partner with the fewest deliveries. A lost claim race moves on to the next
// candidate. ErrNoPartnerAvailable is not fatal: the order simply stays
// unassigned.
func (s *Service) AutoAssign(ctx context.Context, orderID types.ID) (*Partner, error) {
	if orderID == "" {
		return nil, ErrBadRequest
	}
	if _, err := s.store.HolderOf(ctx, orderID); err == nil {
		return nil, ErrOrderAlreadyAssigned
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	candidates, err := s.store.ListIdle(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		p, err := s.claim(ctx, c.ID, orderID)
		if errors.Is(err, ErrConcurrentClaimConflict) {
			log.Printf("partner: claim conflict on %s for order %s, trying next candidate", c.ID, orderID)
			continue
		}
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	metrics.PartnerClaims.WithLabelValues("none").Inc()
	return nil, ErrNoPartnerAvailable
}

// Claim assigns a specific partner chosen by an admin.
func (s *Service) Claim(ctx context.Context, partnerID, orderID types.ID) (*Partner, error) {
	if partnerID == "" || orderID == "" {
		return nil, ErrBadRequest
	}
	if _, err := s.store.Get(ctx, partnerID); err != nil {
		return nil, err
	}
	return s.claim(ctx, partnerID, orderID)
}

func (s *Service) claim(ctx context.Context, partnerID, orderID types.ID) (*Partner, error) {
	ok, err := s.store.Claim(ctx, partnerID, orderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.PartnerClaims.WithLabelValues("conflict").Inc()
		return nil, ErrConcurrentClaimConflict
	}
	metrics.PartnerClaims.WithLabelValues("claimed").Inc()
	p, err := s.store.Get(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, p)
	return p, nil
}

// Release unconditionally returns the partner to idle. Used by admins when a
// partner is unreachable. The held order loses its partner first, so the
// released partner can no longer drive it and an admin can reassign it.
func (s *Service) Release(ctx context.Context, partnerID types.ID) error {
	p, err := s.store.Get(ctx, partnerID)
	if err != nil {
		return err
	}
	if p.CurrentOrderID != nil && s.orders != nil {
		orderID := *p.CurrentOrderID
		detached, err := s.orders.DetachPartner(ctx, orderID, partnerID)
		if err != nil {
			return err
		}
		if detached {
			log.Printf("partner: released partner=%s detached from order=%s", partnerID, orderID)
		}
	}
	if err := s.store.Release(ctx, partnerID); err != nil {
		return err
	}
	s.publish(ctx, partnerID)
	return nil
}

// Holds reports whether the partner currently holds orderID.
func (s *Service) Holds(ctx context.Context, partnerID, orderID types.ID) (bool, error) {
	p, err := s.store.Get(ctx, partnerID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.Holds(orderID), nil
}

// ReleaseIfHolding releases the partner only while it still holds orderID.
func (s *Service) ReleaseIfHolding(ctx context.Context, partnerID, orderID types.ID) (bool, error) {
	ok, err := s.store.ReleaseIfHolding(ctx, partnerID, orderID)
	if err != nil || !ok {
		return ok, err
	}
	s.publish(ctx, partnerID)
	return true, nil
}

// AdvanceStatus moves a holding partner through pickup/navigating/reached.
func (s *Service) AdvanceStatus(ctx context.Context, partnerID, orderID types.ID, status Status) error {
	if !status.Busy() {
		return ErrBadRequest
	}
	ok, err := s.store.SetStatusIfHolding(ctx, partnerID, orderID, status)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotHolding
	}
	s.publish(ctx, partnerID)
	return nil
}

func (s *Service) CompleteDelivery(ctx context.Context, partnerID, orderID types.ID) error {
	ok, err := s.store.CompleteDelivery(ctx, partnerID, orderID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotHolding
	}
	s.publish(ctx, partnerID)
	return nil
}

func (s *Service) Deactivate(ctx context.Context, partnerID types.ID) error {
	return s.setActive(ctx, partnerID, false)
}

func (s *Service) Reactivate(ctx context.Context, partnerID types.ID) error {
	return s.setActive(ctx, partnerID, true)
}

func (s *Service) setActive(ctx context.Context, partnerID types.ID, active bool) error {
	ok, err := s.store.SetActive(ctx, partnerID, active)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBusy
	}
	s.publish(ctx, partnerID)
	return nil
}

func (s *Service) GoOnline(ctx context.Context, partnerID types.ID) error {
	return s.setAvailability(ctx, partnerID, StatusIdle)
}

func (s *Service) GoOffline(ctx context.Context, partnerID types.ID) error {
	return s.setAvailability(ctx, partnerID, StatusOffline)
}

func (s *Service) setAvailability(ctx context.Context, partnerID types.ID, status Status) error {
	ok, err := s.store.SetAvailability(ctx, partnerID, status)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBusy
	}
	s.publish(ctx, partnerID)
	return nil
}

func (s *Service) UpdateLocation(ctx context.Context, partnerID types.ID, pos types.Point, at time.Time) error {
	if !pos.Valid() {
		return ErrBadRequest
	}
	if err := s.store.UpdateLocation(ctx, partnerID, pos, at); err != nil {
		return err
	}
	s.publish(ctx, partnerID)
	return nil
}

// CleanupStaleAssignments releases every partner whose held order is terminal
// or missing, and returns how many were reclaimed.
func (s *Service) CleanupStaleAssignments(ctx context.Context) (int, error) {
	busy, err := s.store.ListBusy(ctx)
	if err != nil {
		return 0, err
	}
	reclaimed := 0
	for _, p := range busy {
		if p.CurrentOrderID == nil {
			continue
		}
		orderID := *p.CurrentOrderID
		exists, terminal, err := s.orders.OrderState(ctx, orderID)
		if err != nil {
			return reclaimed, err
		}
		if exists && !terminal {
			continue
		}
		ok, err := s.store.ReleaseIfHolding(ctx, p.ID, orderID)
		if err != nil {
			return reclaimed, err
		}
		if !ok {
			continue
		}
		log.Printf("partner: stale assignment reclaimed partner=%s order=%s exists=%v", p.ID, orderID, exists)
		metrics.StaleAssignmentsReclaimed.Inc()
		reclaimed++
		s.publish(ctx, p.ID)
	}
	return reclaimed, nil
}

// RunCleanupTicker sweeps on a fixed interval until ctx is cancelled.
func (s *Service) RunCleanupTicker(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.CleanupStaleAssignments(ctx); err != nil {
				log.Printf("partner: cleanup sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("partner: cleanup sweep reclaimed %d partners", n)
			}
		}
	}
}

func (s *Service) publish(ctx context.Context, partnerID types.ID) {
	if s.pub == nil {
		return
	}
	p, err := s.store.Get(ctx, partnerID)
	if err != nil {
		log.Printf("partner: reload %s for feed: %v", partnerID, err)
		return
	}
	s.notify(ctx, p)
}

func (s *Service) notify(ctx context.Context, p *Partner) {
	if s.pub != nil {
		s.pub.PartnerChanged(ctx, *p)
	}
}
