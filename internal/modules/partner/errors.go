package partner

import "errors"

var (
	// ErrNotFound is returned when the partner does not exist.
	ErrNotFound = errors.New("partner not found")

	// ErrNoPartnerAvailable is returned when no active idle partner could be claimed.
	ErrNoPartnerAvailable = errors.New("no delivery partner available")

	// ErrConcurrentClaimConflict is returned when the claim precondition failed
	// because another actor claimed (or deactivated) the partner first.
	ErrConcurrentClaimConflict = errors.New("partner claimed concurrently")

	// ErrOrderAlreadyAssigned is returned when another partner already holds the order.
	ErrOrderAlreadyAssigned = errors.New("order already has a delivery partner")

	// ErrBusy is returned for operations that require the partner to hold no order.
	ErrBusy = errors.New("partner is holding an order")

	// ErrNotHolding is returned when a partner tries to act on an order it does not hold.
	ErrNotHolding = errors.New("partner does not hold this order")

	// ErrDuplicate is returned when enrolling an id that already exists.
	ErrDuplicate = errors.New("partner already enrolled")

	// ErrBadRequest is returned for invalid enrollment or status input.
	ErrBadRequest = errors.New("bad request")
)
