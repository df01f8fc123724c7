// README: Live partner-state feed events consumed by the admin dashboard and partner map.
package feed

import (
	"context"
	"time"

	"freshcart/internal/modules/partner"
	"freshcart/internal/types"
)

const KindPartnerState = "partner_state"

type Event struct {
	Kind      string         `json:"kind"`
	PartnerID types.ID       `json:"partnerId"`
	Status    partner.Status `json:"status"`
	OrderID   *types.ID      `json:"orderId,omitempty"`
	Location  *types.Point   `json:"location,omitempty"`
	IsActive  bool           `json:"isActive"`
	At        time.Time      `json:"at"`
}

func FromPartner(p partner.Partner, at time.Time) Event {
	return Event{
		Kind:      KindPartnerState,
		PartnerID: p.ID,
		Status:    p.CurrentStatus,
		OrderID:   p.CurrentOrderID,
		Location:  p.CurrentLocation,
		IsActive:  p.IsActive,
		At:        at.UTC(),
	}
}

// Subscriber streams feed events until ctx is cancelled, then closes the channel.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// Fanout delivers every partner change to each publisher in order.
type Fanout []partner.Publisher

var _ partner.Publisher = Fanout(nil)

func (f Fanout) PartnerChanged(ctx context.Context, p partner.Partner) {
	for _, pub := range f {
		if pub != nil {
			pub.PartnerChanged(ctx, p)
		}
	}
}
