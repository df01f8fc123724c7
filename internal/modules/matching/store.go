// README: Matching index backed by Redis GEO.
package matching

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"

	"freshcart/internal/modules/partner"
	"freshcart/internal/types"
)

const partnerGeoKey = "matching:partners"

// RedisIndex follows the partner feed: assignable partners are GEOADDed,
// everyone else is removed.
type RedisIndex struct {
	redis *redis.Client
}

var _ Index = (*RedisIndex)(nil)

func NewRedisIndex(redis *redis.Client) *RedisIndex {
	return &RedisIndex{redis: redis}
}

func (s *RedisIndex) PartnerChanged(ctx context.Context, p partner.Partner) {
	var err error
	if assignable(p) {
		err = s.redis.GeoAdd(ctx, partnerGeoKey, &redis.GeoLocation{
			Name:      string(p.ID),
			Longitude: p.CurrentLocation.Lng,
			Latitude:  p.CurrentLocation.Lat,
		}).Err()
	} else {
		err = s.redis.ZRem(ctx, partnerGeoKey, string(p.ID)).Err()
	}
	if err != nil {
		log.Printf("matching: index %s: %v", p.ID, err)
	}
}

func (s *RedisIndex) Nearby(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]Candidate, error) {
	results, err := s.redis.GeoSearchLocation(ctx, partnerGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  p.Lng,
			Latitude:   p.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, len(results))
	for i, r := range results {
		out[i] = Candidate{
			PartnerID:  types.ID(r.Name),
			Position:   types.Point{Lat: r.Latitude, Lng: r.Longitude},
			DistanceKm: r.Dist,
		}
	}
	return out, nil
}
