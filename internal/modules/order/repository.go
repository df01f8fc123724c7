// README: Persistence contract for orders and their timeline.
package order

import (
	"context"

	"freshcart/internal/types"
)

// Repository is implemented by the Postgres Store and the in-memory store.
// Every mutating method is a single conditional write and reports whether its
// precondition held.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	ListByStatus(ctx context.Context, status Status) ([]*Order, error)

	// UpdateStatus moves the order from (from, version) to u.To, bumps the
	// version, stamps the transition time, stores u.OTP (cleared when empty)
	// and clears the ETA fields.
	UpdateStatus(ctx context.Context, id types.ID, from Status, version int, u Update) (bool, error)
	// AttachPartner stores the snapshot iff the order is staffed (confirmed
	// through reached_destination) and has no partner.
	AttachPartner(ctx context.Context, id types.ID, snap PartnerSnapshot) (bool, error)
	// DetachPartner clears the snapshot iff partnerID is the attached partner
	// and the order is not terminal.
	DetachPartner(ctx context.Context, id, partnerID types.ID) (bool, error)
	// SetOTP replaces the code iff the order is reached_destination.
	SetOTP(ctx context.Context, id types.ID, otp string) (bool, error)
	// ConsumeOTP moves reached_destination -> delivered iff otp matches the
	// stored code, clearing it in the same write.
	ConsumeOTP(ctx context.Context, id types.ID, otp string, u Update) (bool, error)
	// ApplyETA writes the estimate iff the order is out_for_delivery and no
	// newer sample has been applied.
	ApplyETA(ctx context.Context, id types.ID, eta ETAUpdate) (bool, error)

	AppendEvent(ctx context.Context, e *Event) error
	ListEvents(ctx context.Context, id types.ID) ([]Event, error)

	OrderState(ctx context.Context, id types.ID) (exists, terminal bool, err error)
}
