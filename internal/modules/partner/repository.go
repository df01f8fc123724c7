// README: Persistence contract for the partner registry.
package partner

import (
	"context"
	"time"

	"freshcart/internal/types"
)

// Repository is implemented by the Postgres Store and the in-memory store.
// Every method that changes CurrentOrderID is a single conditional write.
type Repository interface {
	Create(ctx context.Context, p *Partner) error
	Get(ctx context.Context, id types.ID) (*Partner, error)
	List(ctx context.Context) ([]*Partner, error)
	// ListIdle returns active, unassigned, idle partners ordered by
	// TotalDeliveries then ID.
	ListIdle(ctx context.Context) ([]*Partner, error)
	ListBusy(ctx context.Context) ([]*Partner, error)
	// HolderOf returns the partner holding orderID, or ErrNotFound.
	HolderOf(ctx context.Context, orderID types.ID) (*Partner, error)

	// Claim sets CurrentOrderID=orderID, status=assigned iff the partner is
	// active, idle and holds nothing. It returns false when the precondition
	// fails and ErrOrderAlreadyAssigned when another partner holds orderID.
	Claim(ctx context.Context, partnerID, orderID types.ID) (bool, error)
	Release(ctx context.Context, partnerID types.ID) error
	ReleaseIfHolding(ctx context.Context, partnerID, orderID types.ID) (bool, error)
	SetStatusIfHolding(ctx context.Context, partnerID, orderID types.ID, status Status) (bool, error)
	// CompleteDelivery releases the partner and increments TotalDeliveries in one write.
	CompleteDelivery(ctx context.Context, partnerID, orderID types.ID) (bool, error)
	// SetActive changes IsActive; deactivation only succeeds while nothing is held.
	SetActive(ctx context.Context, partnerID types.ID, active bool) (bool, error)
	// SetAvailability moves between idle and offline while nothing is held.
	SetAvailability(ctx context.Context, partnerID types.ID, status Status) (bool, error)
	UpdateLocation(ctx context.Context, partnerID types.ID, pos types.Point, at time.Time) error
}
