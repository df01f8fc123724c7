// README: Geofence settings store backed by PostgreSQL, with change push over Redis pub/sub.
package geofence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const settingsChannel = "settings:geofence"

type Store struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

var _ Source = (*Store)(nil)

func NewStore(db *pgxpool.Pool, redis *redis.Client) *Store {
	return &Store{db: db, redis: redis}
}

func (s *Store) Get(ctx context.Context) (Config, error) {
	var c Config
	err := s.db.QueryRow(ctx, `
		SELECT center_lat, center_lng, radius_km, updated_at
		FROM geofence_settings
		WHERE id = 1`).Scan(&c.CenterLat, &c.CenterLng, &c.RadiusKm, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Config{}, ErrNotConfigured
	}
	if err != nil {
		return Config{}, err
	}
	return c, nil
}

func (s *Store) Save(ctx context.Context, c Config) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO geofence_settings (id, center_lat, center_lng, radius_km, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET center_lat = EXCLUDED.center_lat,
		    center_lng = EXCLUDED.center_lng,
		    radius_km = EXCLUDED.radius_km,
		    updated_at = EXCLUDED.updated_at`,
		c.CenterLat, c.CenterLng, c.RadiusKm, c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	s.announce(ctx, c)
	return nil
}

// announce pushes a committed change to other instances. Failures are only
// logged: the row is saved and the caller installs it locally.
func (s *Store) announce(ctx context.Context, c Config) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(c)
	if err != nil {
		log.Printf("geofence: encode change: %v", err)
		return
	}
	if err := s.redis.Publish(ctx, settingsChannel, payload).Err(); err != nil {
		log.Printf("geofence: publish change on %s: %v", settingsChannel, err)
	}
}

func (s *Store) Subscribe(ctx context.Context) (<-chan Config, error) {
	out := make(chan Config, 1)
	if s.redis == nil {
		// Without Redis the snapshot only changes through Service.Update in this process.
		go func() {
			<-ctx.Done()
			close(out)
		}()
		return out, nil
	}

	sub := s.redis.Subscribe(ctx, settingsChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", settingsChannel, err)
	}

	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var c Config
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					log.Printf("geofence: bad payload on %s: %v", settingsChannel, err)
					continue
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
