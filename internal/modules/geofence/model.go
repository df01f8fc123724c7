// README: Geofence (delivery service area) configuration.
package geofence

import (
	"errors"
	"time"

	"freshcart/internal/geo"
)

const (
	MinRadiusKm = 0.1
	MaxRadiusKm = 50.0
)

var (
	ErrNotConfigured = errors.New("geofence not configured")
	ErrInvalidRadius = errors.New("geofence radius out of range")
	ErrInvalidCenter = errors.New("geofence center out of range")
)

type Config struct {
	CenterLat float64   `json:"centerLat"`
	CenterLng float64   `json:"centerLng"`
	RadiusKm  float64   `json:"radiusKm"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DefaultConfig is used until a configuration has been loaded from the settings store.
var DefaultConfig = Config{CenterLat: 13.0827, CenterLng: 80.2707, RadiusKm: 10}

// Contains reports whether the point lies within RadiusKm of the center.
func (c Config) Contains(lat, lng float64) bool {
	return geo.HaversineKm(c.CenterLat, c.CenterLng, lat, lng) <= c.RadiusKm
}

func (c Config) Validate() error {
	if c.CenterLat < -90 || c.CenterLat > 90 || c.CenterLng < -180 || c.CenterLng > 180 {
		return ErrInvalidCenter
	}
	if c.RadiusKm < MinRadiusKm || c.RadiusKm > MaxRadiusKm {
		return ErrInvalidRadius
	}
	return nil
}
