// README: Order aggregate, status definitions and the actor-aware transition table.
package order

import (
	"time"

	"freshcart/internal/types"
)

type Status string

const (
	StatusNone               Status = "none"
	StatusPending            Status = "pending"
	StatusConfirmed          Status = "confirmed"
	StatusPreparing          Status = "preparing"
	StatusOutForDelivery     Status = "out_for_delivery"
	StatusReachedDestination Status = "reached_destination"
	StatusDelivered          Status = "delivered"
	StatusCancelled          Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Staffed reports whether the order is past admin acceptance and still
// needs a partner to drive it. Only these orders can gain a partner.
func (s Status) Staffed() bool {
	switch s {
	case StatusConfirmed, StatusPreparing, StatusOutForDelivery, StatusReachedDestination:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusOutForDelivery,
		StatusReachedDestination, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

type Actor string

const (
	ActorAdmin    Actor = "admin"
	ActorPartner  Actor = "partner"
	ActorCustomer Actor = "customer"
	ActorSystem   Actor = "system"
)

type ETASource string

const (
	ETASourceRoute    ETASource = "route"
	ETASourceFallback ETASource = "fallback"
)

type Item struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Qty       int    `json:"qty"`
	Price     int64  `json:"price"`
}

// PartnerSnapshot is copied onto the order when a partner is assigned and is
// never refreshed from the registry afterwards.
type PartnerSnapshot struct {
	ID     types.ID `json:"id"`
	Name   string   `json:"name"`
	Phone  string   `json:"phone"`
	Rating float64  `json:"rating"`
}

type Order struct {
	ID                  types.ID         `json:"id"`
	CustomerID          types.ID         `json:"customerId"`
	Status              Status           `json:"status"`
	StatusVersion       int              `json:"statusVersion"`
	Items               []Item           `json:"items"`
	DeliveryFee         int64            `json:"deliveryFee"`
	Discount            int64            `json:"discount"`
	Total               types.Money      `json:"total"`
	DeliveryAddress     string           `json:"deliveryAddress"`
	DeliveryCoordinates *types.Point     `json:"deliveryCoordinates,omitempty"`
	DeliveryPartner     *PartnerSnapshot `json:"deliveryPartner,omitempty"`
	DeliveryOTP         string           `json:"deliveryOtp,omitempty"`
	EstimatedArrival    *time.Time       `json:"estimatedArrival,omitempty"`
	EstimatedDuration   int              `json:"estimatedDuration,omitempty"` // seconds
	EstimatedDistance   int              `json:"estimatedDistance,omitempty"` // meters
	ETASource           ETASource        `json:"etaSource,omitempty"`
	LastLocationUpdate  *time.Time       `json:"lastLocationUpdate,omitempty"`
	CancelledReason     string           `json:"cancelledReason,omitempty"`
	CreatedAt           time.Time        `json:"createdAt"`
	ConfirmedAt         *time.Time       `json:"confirmedAt,omitempty"`
	PreparingAt         *time.Time       `json:"preparingAt,omitempty"`
	DispatchedAt        *time.Time       `json:"dispatchedAt,omitempty"`
	ReachedAt           *time.Time       `json:"reachedAt,omitempty"`
	DeliveredAt         *time.Time       `json:"deliveredAt,omitempty"`
	CancelledAt         *time.Time       `json:"cancelledAt,omitempty"`
}

// AssignedTo reports whether partnerID is the partner on the order.
func (o *Order) AssignedTo(partnerID types.ID) bool {
	return o.DeliveryPartner != nil && o.DeliveryPartner.ID == partnerID
}

type Event struct {
	ID         int64     `json:"id"`
	OrderID    types.ID  `json:"orderId"`
	FromStatus Status    `json:"fromStatus"`
	ToStatus   Status    `json:"toStatus"`
	ActorType  Actor     `json:"actorType"`
	ActorID    *types.ID `json:"actorId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Transitions represents the order lifecycle as code: from -> to -> actors
// allowed to trigger it. Terminal states have no entry.
var Transitions = map[Status]map[Status][]Actor{
	StatusPending: {
		StatusConfirmed: {ActorAdmin},
		StatusCancelled: {ActorAdmin, ActorSystem},
	},
	StatusConfirmed: {
		StatusPreparing: {ActorPartner},
		StatusCancelled: {ActorAdmin, ActorSystem},
	},
	StatusPreparing: {
		StatusOutForDelivery: {ActorPartner},
		StatusCancelled:      {ActorAdmin, ActorSystem},
	},
	StatusOutForDelivery: {
		StatusReachedDestination: {ActorPartner},
		StatusCancelled:          {ActorAdmin, ActorSystem},
	},
	StatusReachedDestination: {
		StatusDelivered: {ActorCustomer, ActorPartner},
		StatusCancelled: {ActorAdmin, ActorSystem},
	},
}

func CanTransition(from, to Status, actor Actor) bool {
	next, ok := Transitions[from]
	if !ok {
		return false
	}
	for _, a := range next[to] {
		if a == actor {
			return true
		}
	}
	return false
}

// Update carries the fields written together with a status change.
type Update struct {
	To              Status
	At              time.Time
	OTP             string
	CancelledReason string
}

// ETAUpdate is one computed estimate for an out_for_delivery order.
type ETAUpdate struct {
	Arrival     time.Time
	DurationSec int
	DistanceM   int
	Source      ETASource
	SampledAt   time.Time
}

// StatusChange is the payload published on the order-events topic.
type StatusChange struct {
	OrderID    types.ID  `json:"orderId"`
	CustomerID types.ID  `json:"customerId"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	Actor      Actor     `json:"actor"`
	ActorID    *types.ID `json:"actorId,omitempty"`
	Version    int       `json:"version"`
	At         time.Time `json:"at"`
}
