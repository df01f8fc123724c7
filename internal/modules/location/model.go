// README: Location samples, snapshot history and the proximity thresholds for live tracking.
package location

import (
	"time"

	"freshcart/internal/maps"
	"freshcart/internal/types"
)

const (
	// Thresholds for the one-time "almost there" push; either one triggers it.
	ProximityDuration = 120 * time.Second
	ProximityMeters   = 500

	// MaxClockSkew bounds how far ahead of the server clock a device
	// timestamp may be before it is replaced by the server time.
	MaxClockSkew = 5 * time.Second
)

// Sample is one position report from a partner device.
type Sample struct {
	PartnerID  types.ID    `json:"partnerId"`
	Point      types.Point `json:"point"`
	RecordedAt time.Time   `json:"recordedAt"`
}

type Snapshot struct {
	ID         int64       `json:"id"`
	PartnerID  types.ID    `json:"partnerId"`
	OrderID    *types.ID   `json:"orderId,omitempty"`
	Position   types.Point `json:"position"`
	RecordedAt time.Time   `json:"recordedAt"`
}

// Tracking is the outcome of feeding one sample (or a server refresh) through the ETA path.
type Tracking struct {
	OrderID     types.ID       `json:"orderId,omitempty"`
	Estimate    *maps.Estimate `json:"estimate,omitempty"`
	Applied     bool           `json:"applied"`
	Stale       bool           `json:"stale"`
	AlmostThere bool           `json:"almostThere"`
}

func near(est maps.Estimate) bool {
	return est.Duration <= ProximityDuration || est.DistanceMeters <= ProximityMeters
}
