// README: Order service implements the delivery lifecycle transitions and their side effects.
package order

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"freshcart/internal/metrics"
	"freshcart/internal/modules/partner"
	"freshcart/internal/modules/pricing"
	"freshcart/internal/types"
)

var (
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrNotFound           = errors.New("order not found")
	ErrConflict           = errors.New("order state conflict")
	ErrBadRequest         = errors.New("bad request")
	ErrForbidden          = errors.New("actor not allowed on this order")
	ErrOTPMismatch        = errors.New("delivery otp does not match")
	ErrOutsideServiceArea = errors.New("delivery location is outside the service area")
	ErrStaleUpdate        = errors.New("eta update superseded")

	// ErrOTPConsumed is returned when a code is presented for an order that is
	// already delivered. It matches both ErrOTPMismatch and ErrInvalidTransition.
	ErrOTPConsumed = fmt.Errorf("%w: %w", ErrOTPMismatch, ErrInvalidTransition)
)

const (
	defaultRejectReason = "stock not available"
	defaultCancelReason = "cancelled by admin"
)

type Pricing interface {
	Quote(ctx context.Context, lines []pricing.Line, discount int64) (pricing.Quote, error)
}

// ServiceArea is satisfied by the geofence evaluator.
type ServiceArea interface {
	IsWithinGeofence(lat, lng float64) bool
}

// Geocoder resolves a typed address when the client sent no coordinates.
type Geocoder interface {
	Locate(ctx context.Context, address string) (types.Point, error)
}

// PartnerRegistry is the subset of the partner registry the lifecycle drives.
type PartnerRegistry interface {
	AutoAssign(ctx context.Context, orderID types.ID) (*partner.Partner, error)
	Claim(ctx context.Context, partnerID, orderID types.ID) (*partner.Partner, error)
	ReleaseIfHolding(ctx context.Context, partnerID, orderID types.ID) (bool, error)
	Holds(ctx context.Context, partnerID, orderID types.ID) (bool, error)
	AdvanceStatus(ctx context.Context, partnerID, orderID types.ID, status partner.Status) error
	CompleteDelivery(ctx context.Context, partnerID, orderID types.ID) error
}

// EventPublisher is satisfied by infra.KafkaPublisher.
type EventPublisher interface {
	Publish(ctx context.Context, key string, payload any) error
}

// Notifier pushes status changes to the customer and partner apps.
type Notifier interface {
	OrderStatusChanged(ctx context.Context, o *Order)
}

type Service struct {
	store    Repository
	pricing  Pricing
	partners PartnerRegistry
	area     ServiceArea
	geocoder Geocoder
	events   EventPublisher
	notifier Notifier
	otp      *OTPVerifier
	rand     io.Reader
	now      func() time.Time
}

func NewService(store Repository, pricing Pricing, partners PartnerRegistry) *Service {
	return &Service{
		store:    store,
		pricing:  pricing,
		partners: partners,
		otp:      NewOTPVerifier(store, nil),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) SetServiceArea(area ServiceArea) { s.area = area }
func (s *Service) SetGeocoder(g Geocoder) { s.geocoder = g }
func (s *Service) SetEventPublisher(p EventPublisher) { s.events = p }
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// SetRandom replaces the OTP entropy source.
func (s *Service) SetRandom(r io.Reader) {
	s.rand = r
	s.otp = NewOTPVerifier(s.store, r)
}

func (s *Service) OTP() *OTPVerifier {
	return s.otp
}

type CreateCommand struct {
	CustomerID          types.ID
	Items               []Item
	Discount            int64
	DeliveryAddress     string
	DeliveryCoordinates *types.Point
}

type AdminCommand struct {
	OrderID types.ID
	AdminID types.ID
	Reason  string
}

type AssignCommand struct {
	OrderID   types.ID
	AdminID   types.ID
	PartnerID types.ID // empty: pick automatically
}

type PartnerCommand struct {
	OrderID   types.ID
	PartnerID types.ID
}

type ConfirmCommand struct {
	OrderID   types.ID
	ActorType Actor
	ActorID   types.ID
	OTP       string
}

type CancelCommand struct {
	OrderID   types.ID
	ActorType Actor
	ActorID   *types.ID
	Reason    string
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	if cmd.CustomerID == "" || len(cmd.Items) == 0 {
		return nil, ErrBadRequest
	}
	if cmd.DeliveryCoordinates == nil && s.geocoder != nil && strings.TrimSpace(cmd.DeliveryAddress) != "" {
		p, err := s.geocoder.Locate(ctx, cmd.DeliveryAddress)
		if err != nil {
			log.Printf("order: geocode %q: %v", cmd.DeliveryAddress, err)
		} else {
			cmd.DeliveryCoordinates = &p
		}
	}
	if c := cmd.DeliveryCoordinates; c != nil {
		if !c.Valid() {
			return nil, ErrBadRequest
		}
		if s.area != nil && !s.area.IsWithinGeofence(c.Lat, c.Lng) {
			return nil, ErrOutsideServiceArea
		}
	}

	lines := make([]pricing.Line, len(cmd.Items))
	for i, it := range cmd.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return nil, ErrBadRequest
		}
		lines[i] = pricing.Line{ProductID: it.ProductID, Qty: it.Qty, Price: it.Price}
	}
	quote, err := s.pricing.Quote(ctx, lines, cmd.Discount)
	if err != nil {
		log.Printf("order: rejected checkout for customer %s: %v", cmd.CustomerID, err)
		return nil, ErrBadRequest
	}

	now := s.now()
	o := &Order{
		ID:                  types.NewID(),
		CustomerID:          cmd.CustomerID,
		Status:              StatusPending,
		StatusVersion:       0,
		Items:               cmd.Items,
		DeliveryFee:         quote.DeliveryFee,
		Discount:            quote.Discount,
		Total:               types.Money{Amount: quote.Total, Currency: quote.Currency},
		DeliveryAddress:     strings.TrimSpace(cmd.DeliveryAddress),
		DeliveryCoordinates: cmd.DeliveryCoordinates,
		CreatedAt:           now,
	}
	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}
	s.record(ctx, o, StatusNone, StatusPending, ActorCustomer, &o.CustomerID, now)
	return o, nil
}

// Accept confirms a pending order and tries to claim a partner for it. The
// order is confirmed even when no partner is available; DeliveryPartner is
// then nil and AssignPartner can retry later.
func (s *Service) Accept(ctx context.Context, cmd AdminCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, o, ActorAdmin, adminID(cmd.AdminID), Update{To: StatusConfirmed}); err != nil {
		return nil, err
	}
	if err := s.assign(ctx, o.ID, ""); err != nil && !errors.Is(err, partner.ErrNoPartnerAvailable) {
		log.Printf("order: auto-assign after accept of %s: %v", o.ID, err)
	}
	return s.store.Get(ctx, o.ID)
}

func (s *Service) Reject(ctx context.Context, cmd AdminCommand) (*Order, error) {
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = defaultRejectReason
	}
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPending {
		return nil, ErrInvalidTransition
	}
	if err := s.transition(ctx, o, ActorAdmin, adminID(cmd.AdminID), Update{To: StatusCancelled, CancelledReason: reason}); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, o.ID)
}

// AssignPartner retries assignment for an order that has no partner, either
// because none was idle at acceptance or because an admin released the one
// driving it. A specific partner can be requested; otherwise the registry
// picks one.
func (s *Service) AssignPartner(ctx context.Context, cmd AssignCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !o.Status.Staffed() {
		return nil, ErrInvalidTransition
	}
	if o.DeliveryPartner != nil {
		return nil, partner.ErrOrderAlreadyAssigned
	}
	if err := s.assign(ctx, o.ID, cmd.PartnerID); err != nil && !errors.Is(err, partner.ErrNoPartnerAvailable) {
		return nil, err
	}
	return s.store.Get(ctx, o.ID)
}

func (s *Service) assign(ctx context.Context, orderID, partnerID types.ID) error {
	if s.partners == nil {
		return partner.ErrNoPartnerAvailable
	}
	var p *partner.Partner
	var err error
	if partnerID != "" {
		p, err = s.partners.Claim(ctx, partnerID, orderID)
	} else {
		p, err = s.partners.AutoAssign(ctx, orderID)
	}
	if errors.Is(err, partner.ErrNoPartnerAvailable) {
		log.Printf("order: no partner available for %s, left unassigned", orderID)
		return err
	}
	if err != nil {
		return err
	}

	ok, err := s.store.AttachPartner(ctx, orderID, PartnerSnapshot{
		ID:     p.ID,
		Name:   p.Name,
		Phone:  p.Phone,
		Rating: p.Rating,
	})
	if err == nil && ok {
		if o, err := s.store.Get(ctx, orderID); err == nil {
			s.notify(ctx, o)
		}
		return nil
	}
	// The order moved on (cancelled, or assigned by someone else) while the
	// claim was in flight: give the partner back.
	if _, rerr := s.partners.ReleaseIfHolding(ctx, p.ID, orderID); rerr != nil {
		log.Printf("order: release partner %s after failed attach to %s: %v", p.ID, orderID, rerr)
	}
	if err != nil {
		return err
	}
	return ErrConflict
}

func (s *Service) PartnerAccept(ctx context.Context, cmd PartnerCommand) (*Order, error) {
	return s.partnerStep(ctx, cmd, StatusConfirmed, StatusPreparing, partner.StatusPickup)
}

func (s *Service) PickUp(ctx context.Context, cmd PartnerCommand) (*Order, error) {
	return s.partnerStep(ctx, cmd, StatusPreparing, StatusOutForDelivery, partner.StatusNavigating)
}

// Arrive moves the order to reached_destination and stores a fresh delivery
// code in the same write.
func (s *Service) Arrive(ctx context.Context, cmd PartnerCommand) (*Order, error) {
	return s.partnerStep(ctx, cmd, StatusOutForDelivery, StatusReachedDestination, partner.StatusReached)
}

func (s *Service) partnerStep(ctx context.Context, cmd PartnerCommand, from, to Status, ps partner.Status) (*Order, error) {
	if cmd.OrderID == "" || cmd.PartnerID == "" {
		return nil, ErrBadRequest
	}
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status != from || !CanTransition(o.Status, to, ActorPartner) {
		return nil, ErrInvalidTransition
	}
	if !o.AssignedTo(cmd.PartnerID) {
		return nil, ErrForbidden
	}
	if s.partners != nil {
		holds, err := s.partners.Holds(ctx, cmd.PartnerID, o.ID)
		if err != nil {
			return nil, err
		}
		if !holds {
			return nil, ErrForbidden
		}
	}

	u := Update{To: to}
	if to == StatusReachedDestination {
		code, err := NewOTP(s.rand)
		if err != nil {
			return nil, err
		}
		u.OTP = code
	}
	pid := cmd.PartnerID
	if err := s.transition(ctx, o, ActorPartner, &pid, u); err != nil {
		return nil, err
	}
	if s.partners != nil {
		if err := s.partners.AdvanceStatus(ctx, cmd.PartnerID, o.ID, ps); err != nil {
			log.Printf("order: partner %s status %s for %s: %v", cmd.PartnerID, ps, o.ID, err)
		}
	}
	return s.store.Get(ctx, o.ID)
}

// ConfirmDelivery checks the code and finalizes the order in one conditional
// write, then releases the partner.
func (s *Service) ConfirmDelivery(ctx context.Context, cmd ConfirmCommand) (*Order, error) {
	if cmd.OrderID == "" || cmd.ActorID == "" {
		return nil, ErrBadRequest
	}
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusDelivered {
		return nil, ErrOTPConsumed
	}
	if !CanTransition(o.Status, StatusDelivered, cmd.ActorType) {
		return nil, ErrInvalidTransition
	}
	switch cmd.ActorType {
	case ActorCustomer:
		if o.CustomerID != cmd.ActorID {
			return nil, ErrForbidden
		}
	case ActorPartner:
		if !o.AssignedTo(cmd.ActorID) {
			return nil, ErrForbidden
		}
	}
	if !validOTPFormat(cmd.OTP) {
		metrics.OTPFailures.Inc()
		return nil, ErrOTPMismatch
	}

	now := s.now()
	ok, err := s.store.ConsumeOTP(ctx, o.ID, cmd.OTP, Update{To: StatusDelivered, At: now})
	if err != nil {
		return nil, err
	}
	if !ok {
		cur, err := s.store.Get(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		if cur.Status == StatusReachedDestination {
			metrics.OTPFailures.Inc()
			log.Printf("order: otp mismatch on %s by %s %s", o.ID, cmd.ActorType, cmd.ActorID)
			return nil, ErrOTPMismatch
		}
		if cur.Status == StatusDelivered {
			return nil, ErrOTPConsumed
		}
		return nil, ErrInvalidTransition
	}

	metrics.OrderTransitions.WithLabelValues(string(StatusDelivered)).Inc()
	actorID := cmd.ActorID
	s.record(ctx, o, o.Status, StatusDelivered, cmd.ActorType, &actorID, now)

	if o.DeliveryPartner != nil && s.partners != nil {
		if err := s.partners.CompleteDelivery(ctx, o.DeliveryPartner.ID, o.ID); err != nil {
			log.Printf("order: complete delivery for partner %s on %s: %v", o.DeliveryPartner.ID, o.ID, err)
		}
	}
	return s.store.Get(ctx, o.ID)
}

func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Order, error) {
	if cmd.ActorType == "" {
		cmd.ActorType = ActorAdmin
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = defaultCancelReason
	}
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, o, cmd.ActorType, cmd.ActorID, Update{To: StatusCancelled, CancelledReason: reason}); err != nil {
		return nil, err
	}

	// Re-read: an in-flight assignment either attached before the cancel or
	// failed its conditional attach and released the partner itself.
	cur, err := s.store.Get(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if cur.DeliveryPartner != nil && s.partners != nil {
		if _, err := s.partners.ReleaseIfHolding(ctx, cur.DeliveryPartner.ID, cur.ID); err != nil {
			log.Printf("order: release partner %s after cancel of %s: %v", cur.DeliveryPartner.ID, cur.ID, err)
		}
	}
	return cur, nil
}

// ApplyETA records an estimate computed from a location sample. Estimates
// from samples older than the last applied one are dropped.
func (s *Service) ApplyETA(ctx context.Context, orderID types.ID, eta ETAUpdate) error {
	ok, err := s.store.ApplyETA(ctx, orderID, eta)
	if err != nil {
		return err
	}
	if !ok {
		metrics.StaleETADiscarded.Inc()
		return ErrStaleUpdate
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Timeline(ctx context.Context, id types.ID) ([]Event, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, id)
}

func (s *Service) ListByStatus(ctx context.Context, status Status) ([]*Order, error) {
	if !status.Valid() {
		return nil, ErrBadRequest
	}
	return s.store.ListByStatus(ctx, status)
}

func (s *Service) transition(ctx context.Context, o *Order, actor Actor, actorID *types.ID, u Update) error {
	if !CanTransition(o.Status, u.To, actor) {
		return ErrInvalidTransition
	}
	if u.At.IsZero() {
		u.At = s.now()
	}
	ok, err := s.store.UpdateStatus(ctx, o.ID, o.Status, o.StatusVersion, u)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	metrics.OrderTransitions.WithLabelValues(string(u.To)).Inc()
	s.record(ctx, o, o.Status, u.To, actor, actorID, u.At)
	return nil
}

// record appends the timeline event and fans the change out. None of these
// side effects can undo a committed transition.
func (s *Service) record(ctx context.Context, o *Order, from, to Status, actor Actor, actorID *types.ID, at time.Time) {
	if err := s.store.AppendEvent(ctx, &Event{
		OrderID:    o.ID,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actor,
		ActorID:    actorID,
		CreatedAt:  at,
	}); err != nil {
		log.Printf("order: append event %s %s->%s: %v", o.ID, from, to, err)
	}
	if s.events != nil {
		version := o.StatusVersion
		if from != StatusNone {
			version++
		}
		if err := s.events.Publish(ctx, string(o.ID), StatusChange{
			OrderID:    o.ID,
			CustomerID: o.CustomerID,
			From:       from,
			To:         to,
			Actor:      actor,
			ActorID:    actorID,
			Version:    version,
			At:         at,
		}); err != nil {
			log.Printf("order: publish %s %s->%s: %v", o.ID, from, to, err)
		}
	}
	if s.notifier != nil {
		if cur, err := s.store.Get(ctx, o.ID); err == nil {
			s.notifier.OrderStatusChanged(ctx, cur)
		}
	}
}

func (s *Service) notify(ctx context.Context, o *Order) {
	if s.notifier != nil {
		s.notifier.OrderStatusChanged(ctx, o)
	}
}

func adminID(id types.ID) *types.ID {
	if id == "" {
		return nil
	}
	return &id
}
