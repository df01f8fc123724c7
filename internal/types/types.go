// README: Shared identifiers and coordinates.
package types

import (
	"strings"

	"github.com/google/uuid"
)

type ID string

// NewID returns a random identifier (uuid v4 without dashes).
func NewID() ID {
	return ID(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies inside the legal lat/lng ranges.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
