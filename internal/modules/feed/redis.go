// README: Partner feed over Redis pub/sub so every API instance streams every change.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"freshcart/internal/modules/partner"
)

const Channel = "feed:partners"

type RedisPublisher struct {
	client *redis.Client
}

var _ partner.Publisher = (*RedisPublisher)(nil)

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (r *RedisPublisher) PartnerChanged(ctx context.Context, p partner.Partner) {
	payload, err := json.Marshal(FromPartner(p, time.Now()))
	if err != nil {
		log.Printf("feed: encode %s: %v", p.ID, err)
		return
	}
	if err := r.client.Publish(ctx, Channel, payload).Err(); err != nil {
		log.Printf("feed: publish %s: %v", p.ID, err)
	}
}

// Hub subscribes to the Redis feed channel.
type Hub struct {
	client *redis.Client
}

var _ Subscriber = (*Hub)(nil)

func NewHub(client *redis.Client) *Hub {
	return &Hub{client: client}
}

func (h *Hub) Subscribe(ctx context.Context) (<-chan Event, error) {
	sub := h.client.Subscribe(ctx, Channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", Channel, err)
	}

	out := make(chan Event, 16)
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
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Printf("feed: bad payload on %s: %v", Channel, err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
