// README: Builds the storage backend and domain services from config.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"freshcart/internal/config"
	"freshcart/internal/infra"
	"freshcart/internal/maps"
	"freshcart/internal/modules/feed"
	"freshcart/internal/modules/geofence"
	"freshcart/internal/modules/location"
	"freshcart/internal/modules/matching"
	"freshcart/internal/modules/order"
	"freshcart/internal/modules/partner"
	"freshcart/internal/modules/pricing"
	"freshcart/internal/store/memory"
)

// stores is one backend's set of repositories.
type stores struct {
	orders    order.Repository
	checker   partner.OrderChecker
	partners  partner.Repository
	geofence  geofence.Source
	snapshots location.SnapshotStore
}

type app struct {
	cfg   config.Config
	db    *pgxpool.Pool
	redis *redis.Client

	stores    stores
	evaluator *geofence.Evaluator
	geofence  *geofence.Service
	partners  *partner.Service
	orders    *order.Service
	routes    *maps.RouteService
	tracking  *location.Service
	matching  *matching.Service

	feedPub partner.Publisher
	feedSub feed.Subscriber

	closers []func()
}

// newApp connects the configured backend. Redis is optional: without it the
// feed and proximity latch stay in-process, which is only correct for a single
// instance. fb may be nil for commands that never notify anyone.
func newApp(ctx context.Context, cfg config.Config, fb *infra.Firebase) (*app, error) {
	a := &app{cfg: cfg}

	if cfg.Redis.Addr != "" {
		client, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			log.Printf("redis unavailable, running single-instance: %v", err)
		} else {
			a.redis = client
			a.closers = append(a.closers, func() { _ = client.Close() })
		}
	}

	switch cfg.Store.Backend {
	case "postgres":
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.db = pool
		a.closers = append(a.closers, pool.Close)
		orders := order.NewStore(pool)
		a.stores = stores{
			orders:    orders,
			checker:   orders,
			partners:  partner.NewStore(pool),
			geofence:  geofence.NewStore(pool, a.redis),
			snapshots: location.NewStore(pool),
		}
	case "memory":
		orders := memory.NewOrders()
		a.stores = stores{
			orders:    orders,
			checker:   orders,
			partners:  memory.NewPartners(),
			geofence:  memory.NewGeofence(),
			snapshots: memory.NewLocations(),
		}
	default:
		a.Close()
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	var index matching.Index
	if a.redis != nil {
		redisIndex := matching.NewRedisIndex(a.redis)
		index = redisIndex
		a.feedPub = feed.Fanout{feed.NewRedisPublisher(a.redis), redisIndex}
		a.feedSub = feed.NewHub(a.redis)
	} else {
		hub := feed.NewLocalHub()
		a.feedPub, a.feedSub = hub, hub
	}
	var notifier *location.FirebaseService
	if fb != nil {
		notifier = location.NewFirebaseService(fb.RTDB, fb.Messaging)
		if fb.RTDB != nil {
			a.feedPub = feed.Fanout{a.feedPub, feed.NewRTDBMirror(fb.RTDB)}
		}
	}

	a.evaluator = geofence.NewEvaluator(geofence.Config{
		CenterLat: cfg.Geofence.CenterLat,
		CenterLng: cfg.Geofence.CenterLng,
		RadiusKm:  cfg.Geofence.RadiusKm,
	})
	a.geofence = geofence.NewService(a.stores.geofence, a.evaluator)
	a.partners = partner.NewService(a.stores.partners, a.stores.checker, a.feedPub)
	a.matching = matching.NewService(a.partners, index)
	a.orders = order.NewService(a.stores.orders, pricing.NewService(cfg.Pricing), a.partners)
	a.orders.SetServiceArea(a.evaluator)
	if notifier != nil {
		a.orders.SetNotifier(notifier)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := infra.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.orders.SetEventPublisher(kafka)
		a.closers = append(a.closers, func() { _ = kafka.Close() })
	}

	routes, err := maps.NewRouteService(cfg.Maps.APIKey, cfg.ETA.Timeout)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.routes = routes
	if cfg.Maps.APIKey != "" {
		geocoder, err := maps.NewGeocodeService(cfg.Maps.APIKey, "")
		if err != nil {
			a.Close()
			return nil, err
		}
		a.orders.SetGeocoder(geocoder)
	}

	var latch location.Latch = location.NewMemoryLatch()
	if a.redis != nil {
		latch = location.NewRedisLatch(a.redis)
	}
	a.tracking = location.NewService(a.partners, a.orders, routes, latch)
	a.tracking.SetSnapshotStore(a.stores.snapshots)
	a.tracking.SetTimeout(cfg.ETA.Timeout)
	if notifier != nil {
		a.tracking.SetMirror(notifier)
		a.tracking.SetPusher(notifier)
	}
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
