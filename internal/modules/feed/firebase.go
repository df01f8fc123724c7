// README: Mirrors partner state to Firebase RTDB for the partner app and live map.
package feed

import (
	"context"
	"log"
	"time"

	"firebase.google.com/go/v4/db"

	"freshcart/internal/modules/partner"
)

type RTDBMirror struct {
	client *db.Client
}

var _ partner.Publisher = (*RTDBMirror)(nil)

func NewRTDBMirror(client *db.Client) *RTDBMirror {
	return &RTDBMirror{client: client}
}

type rtdbPartnerState struct {
	Status    string   `json:"status"`
	OrderID   string   `json:"orderId"`
	IsActive  bool     `json:"isActive"`
	Lat       *float64 `json:"lat,omitempty"`
	Lng       *float64 `json:"lng,omitempty"`
	UpdatedAt int64    `json:"updatedAt"`
}

func (m *RTDBMirror) PartnerChanged(ctx context.Context, p partner.Partner) {
	state := rtdbPartnerState{
		Status:    string(p.CurrentStatus),
		IsActive:  p.IsActive,
		UpdatedAt: time.Now().UnixMilli(),
	}
	if p.CurrentOrderID != nil {
		state.OrderID = string(*p.CurrentOrderID)
	}
	if p.CurrentLocation != nil {
		state.Lat, state.Lng = &p.CurrentLocation.Lat, &p.CurrentLocation.Lng
	}
	if err := m.client.NewRef("partner_states/"+string(p.ID)).Set(ctx, state); err != nil {
		log.Printf("feed: mirror %s: %v", p.ID, err)
	}
}
