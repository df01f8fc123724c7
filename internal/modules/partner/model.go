// README: Delivery partner aggregate, status definitions and the claim invariant.
package partner

import (
	"fmt"
	"time"

	"freshcart/internal/types"
)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusAssigned   Status = "assigned"
	StatusPickup     Status = "pickup"
	StatusNavigating Status = "navigating"
	StatusReached    Status = "reached"
	StatusOffline    Status = "offline"
)

// Busy reports whether a partner in this status must be holding an order.
func (s Status) Busy() bool {
	switch s {
	case StatusAssigned, StatusPickup, StatusNavigating, StatusReached:
		return true
	}
	return false
}

type VehicleType string

const (
	VehicleBike    VehicleType = "bike"
	VehicleScooter VehicleType = "scooter"
	VehicleBicycle VehicleType = "bicycle"
)

func (v VehicleType) Valid() bool {
	return v == VehicleBike || v == VehicleScooter || v == VehicleBicycle
}

type Partner struct {
	ID                types.ID     `json:"id"`
	Name              string       `json:"name"`
	Phone             string       `json:"phone"`
	Email             string       `json:"email,omitempty"`
	VehicleType       VehicleType  `json:"vehicleType"`
	IsActive          bool         `json:"isActive"`
	CurrentStatus     Status       `json:"currentStatus"`
	CurrentOrderID    *types.ID    `json:"currentOrderId"`
	CurrentLocation   *types.Point `json:"currentLocation,omitempty"`
	LocationUpdatedAt *time.Time   `json:"locationUpdatedAt,omitempty"`
	Rating            float64      `json:"rating"`
	TotalDeliveries   int          `json:"totalDeliveries"`
	JoinedAt          time.Time    `json:"joinedAt"`
}

// CheckInvariant verifies that a current order is held exactly when the status is busy.
func (p *Partner) CheckInvariant() error {
	holding := p.CurrentOrderID != nil
	if holding != p.CurrentStatus.Busy() {
		return fmt.Errorf("partner %s: status %s with current order %v", p.ID, p.CurrentStatus, p.CurrentOrderID)
	}
	return nil
}

// Holds reports whether the partner currently holds orderID.
func (p *Partner) Holds(orderID types.ID) bool {
	return p.CurrentOrderID != nil && *p.CurrentOrderID == orderID
}

type EnrollCommand struct {
	ID          types.ID // optional, the partner's auth uid
	Name        string
	Phone       string
	Email       string
	VehicleType VehicleType
	Rating      float64
}
