package location_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"freshcart/internal/config"
	"freshcart/internal/maps"
	"freshcart/internal/modules/geofence"
	"freshcart/internal/modules/location"
	"freshcart/internal/modules/order"
	"freshcart/internal/modules/partner"
	"freshcart/internal/modules/pricing"
	"freshcart/internal/store/memory"
	"freshcart/internal/testutil"
	"freshcart/internal/types"
)

type fixedETA struct {
	mu    sync.Mutex
	est   maps.Estimate
	calls int
}

func (f *fixedETA) EstimateWithFallback(_ context.Context, _, _ types.Point) maps.Estimate {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	e := f.est
	e.Arrival = time.Now().Add(e.Duration)
	return e
}

func (f *fixedETA) set(d time.Duration, meters int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.est = maps.Estimate{Duration: d, DistanceMeters: meters, Source: maps.SourceRoute}
}

type recorder struct {
	mu        sync.Mutex
	locations []types.ID
	tracked   []types.ID
	pushes    []types.ID
}

func (r *recorder) PartnerLocation(_ context.Context, id types.ID, _ types.Point, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locations = append(r.locations, id)
	return nil
}

func (r *recorder) OrderTracking(_ context.Context, o *order.Order, _ types.Point, _ maps.Estimate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracked = append(r.tracked, o.ID)
	return nil
}

func (r *recorder) AlmostThere(_ context.Context, o *order.Order, _ maps.Estimate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, o.ID)
	return nil
}

func (r *recorder) pushCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pushes)
}

type fixture struct {
	tracking *location.Service
	orders   *order.Service
	partners *partner.Service
	eta      *fixedETA
	rec      *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	orderStore := memory.NewOrders()
	partners := partner.NewService(memory.NewPartners(), orderStore, nil)
	orders := order.NewService(orderStore, pricing.NewService(config.PricingConfig{DeliveryFee: 25, Currency: "INR"}), partners)
	orders.SetServiceArea(geofence.NewEvaluator(geofence.DefaultConfig))

	eta := &fixedETA{}
	eta.set(15*time.Minute, 4000)
	rec := &recorder{}
	svc := location.NewService(partners, orders, eta, location.NewMemoryLatch())
	svc.SetSnapshotStore(memory.NewLocations())
	svc.SetMirror(rec)
	svc.SetPusher(rec)
	return &fixture{tracking: svc, orders: orders, partners: partners, eta: eta, rec: rec}
}

func (f *fixture) enroll(t *testing.T) *partner.Partner {
	t.Helper()
	p, err := f.partners.Enroll(context.Background(), partner.EnrollCommand{Name: "Ravi", Phone: "9840012345"})
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	return p
}

// confirm creates an order and accepts it, which assigns the only partner.
func (f *fixture) confirm(t *testing.T) *order.Order {
	t.Helper()
	ctx := context.Background()
	o, err := f.orders.Create(ctx, order.CreateCommand{
		CustomerID:          "cust-1",
		Items:               []order.Item{{ProductID: "milk", Name: "Milk 1L", Qty: 1, Price: 60}},
		DeliveryAddress:     "4 Besant Nagar, Chennai",
		DeliveryCoordinates: &types.Point{Lat: 13.0, Lng: 80.26},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	o, err = f.orders.Accept(ctx, order.AdminCommand{OrderID: o.ID, AdminID: "admin"})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if o.DeliveryPartner == nil {
		t.Fatalf("expected a partner on the order")
	}
	return o
}

func (f *fixture) dispatch(t *testing.T) (*order.Order, types.ID) {
	t.Helper()
	ctx := context.Background()
	o := f.confirm(t)
	pid := o.DeliveryPartner.ID
	if _, err := f.orders.PartnerAccept(ctx, order.PartnerCommand{OrderID: o.ID, PartnerID: pid}); err != nil {
		t.Fatalf("partner accept: %v", err)
	}
	o, err := f.orders.PickUp(ctx, order.PartnerCommand{OrderID: o.ID, PartnerID: pid})
	if err != nil {
		t.Fatalf("pickup: %v", err)
	}
	return o, pid
}

var courier = types.Point{Lat: 13.02, Lng: 80.25}

func TestRecordSampleRejectsInvalidPoint(t *testing.T) {
	f := newFixture(t)
	p := f.enroll(t)
	_, err := f.tracking.RecordSample(context.Background(), location.Sample{PartnerID: p.ID, Point: types.Point{Lat: 95, Lng: 0}})
	if !errors.Is(err, location.ErrInvalidSample) {
		t.Fatalf("expected ErrInvalidSample, got %v", err)
	}
}

func TestRecordSampleUnknownPartner(t *testing.T) {
	f := newFixture(t)
	_, err := f.tracking.RecordSample(context.Background(), location.Sample{PartnerID: "ghost", Point: courier})
	if !errors.Is(err, partner.ErrNotFound) {
		t.Fatalf("expected partner.ErrNotFound, got %v", err)
	}
}

func TestRecordSampleIdlePartnerOnlyStoresLocation(t *testing.T) {
	f := newFixture(t)
	p := f.enroll(t)
	ctx := context.Background()

	res, err := f.tracking.RecordSample(ctx, location.Sample{PartnerID: p.ID, Point: courier})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if res.OrderID != "" || res.Applied {
		t.Fatalf("idle partner should not track an order: %+v", res)
	}
	got, _ := f.partners.Get(ctx, p.ID)
	if got.CurrentLocation == nil || *got.CurrentLocation != courier {
		t.Fatalf("location not stored: %+v", got.CurrentLocation)
	}
	if len(f.rec.locations) != 1 {
		t.Fatalf("expected one mirrored location, got %d", len(f.rec.locations))
	}
	if f.eta.calls != 0 {
		t.Fatalf("no ETA should be computed without an order")
	}
}

func TestRecordSampleBeforePickupSkipsETA(t *testing.T) {
	f := newFixture(t)
	f.enroll(t)
	o := f.confirm(t)

	res, err := f.tracking.RecordSample(context.Background(), location.Sample{PartnerID: o.DeliveryPartner.ID, Point: courier})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if res.OrderID != o.ID || res.Applied || res.Estimate != nil {
		t.Fatalf("confirmed order must not get an ETA: %+v", res)
	}
}

func TestRecordSampleAppliesETA(t *testing.T) {
	f := newFixture(t)
	f.enroll(t)
	o, pid := f.dispatch(t)
	ctx := context.Background()

	at := time.Now().UTC().Add(-time.Second)
	res, err := f.tracking.RecordSample(ctx, location.Sample{PartnerID: pid, Point: courier, RecordedAt: at})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !res.Applied || res.Stale || res.AlmostThere {
		t.Fatalf("unexpected result %+v", res)
	}

	got, err := f.orders.Get(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.EstimatedDuration != 900 || got.EstimatedDistance != 4000 || got.ETASource != order.ETASourceRoute {
		t.Fatalf("eta not applied: dur=%d dist=%d src=%s", got.EstimatedDuration, got.EstimatedDistance, got.ETASource)
	}
	if got.LastLocationUpdate == nil || !got.LastLocationUpdate.Equal(at) {
		t.Fatalf("last location update = %v, want %v", got.LastLocationUpdate, at)
	}
	if len(f.rec.tracked) != 1 {
		t.Fatalf("expected order tracking mirror, got %d", len(f.rec.tracked))
	}

	history, err := f.tracking.History(ctx, o.ID, 10)
	if err != nil || len(history) != 1 {
		t.Fatalf("history = %v, err %v", history, err)
	}
}

func TestStaleSampleIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.enroll(t)
	o, pid := f.dispatch(t)
	ctx := context.Background()

	newer := time.Now().UTC()
	older := newer.Add(-20 * time.Second)

	if _, err := f.tracking.RecordSample(ctx, location.Sample{PartnerID: pid, Point: courier, RecordedAt: newer}); err != nil {
		t.Fatal(err)
	}

	// the response for the older sample arrives late with a different estimate
	f.eta.set(30*time.Minute, 9000)
	res, err := f.tracking.RecordSample(ctx, location.Sample{PartnerID: pid, Point: courier, RecordedAt: older})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !res.Stale || res.Applied {
		t.Fatalf("older sample must be discarded: %+v", res)
	}
	got, _ := f.orders.Get(ctx, o.ID)
	if got.EstimatedDuration != 900 || !got.LastLocationUpdate.Equal(newer) {
		t.Fatalf("stale estimate overwrote newer one: dur=%d last=%v", got.EstimatedDuration, got.LastLocationUpdate)
	}
}

func TestAlmostThereFiresOncePerEpoch(t *testing.T) {
	f := newFixture(t)
	f.enroll(t)
	_, pid := f.dispatch(t)
	ctx := context.Background()

	f.eta.set(90*time.Second, 2000)
	base := time.Now().UTC()

	first, err := f.tracking.RecordSample(ctx, location.Sample{PartnerID: pid, Point: courier, RecordedAt: base})
	if err != nil {
		t.Fatal(err)
	}
	if !first.AlmostThere {
		t.Fatalf("first near sample should send the push: %+v", first)
	}
	for i := 1; i <= 3; i++ {
		res, err := f.tracking.RecordSample(ctx, location.Sample{PartnerID: pid, Point: courier, RecordedAt: base.Add(time.Duration(i) * time.Second)})
		if err != nil {
			t.Fatal(err)
		}
		if res.AlmostThere {
			t.Fatalf("sample %d re-sent the push", i)
		}
	}
	if n := f.rec.pushCount(); n != 1 {
		t.Fatalf("expected exactly 1 push, got %d", n)
	}
}

func TestAlmostThereByDistance(t *testing.T) {
	f := newFixture(t)
	f.enroll(t)
	_, pid := f.dispatch(t)

	// slow traffic but close by
	f.eta.set(10*time.Minute, 400)
	res, err := f.tracking.RecordSample(context.Background(), location.Sample{PartnerID: pid, Point: courier})
	if err != nil {
		t.Fatal(err)
	}
	if !res.AlmostThere {
		t.Fatalf("400m away should count as near: %+v", res)
	}
}

func TestConcurrentNearSamplesSendOnePush(t *testing.T) {
	f := newFixture(t)
	f.enroll(t)
	_, pid := f.dispatch(t)
	f.eta.set(60*time.Second, 300)

	base := time.Now().UTC()
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, _ = f.tracking.RecordSample(context.Background(), location.Sample{
				PartnerID:  pid,
				Point:      courier,
				RecordedAt: base.Add(time.Duration(i) * time.Millisecond),
			})
		}(i)
	}
	close(start)
	wg.Wait()

	if n := f.rec.pushCount(); n != 1 {
		t.Fatalf("expected exactly 1 push under concurrency, got %d", n)
	}
}

func TestMemoryLatchResetsWithStatusVersion(t *testing.T) {
	l := location.NewMemoryLatch()
	ctx := context.Background()

	if ok, _ := l.Acquire(ctx, "o1", 3); !ok {
		t.Fatalf("first acquire should win")
	}
	if ok, _ := l.Acquire(ctx, "o1", 3); ok {
		t.Fatalf("second acquire in the same epoch must lose")
	}
	if ok, _ := l.Acquire(ctx, "o1", 5); !ok {
		t.Fatalf("a new status version starts a new epoch")
	}
	if ok, _ := l.Acquire(ctx, "o2", 3); !ok {
		t.Fatalf("latches are per order")
	}
}

func TestRedisLatch(t *testing.T) {
	rdb := testutil.Redis(t)
	l := location.NewRedisLatch(rdb)
	ctx := context.Background()

	if ok, err := l.Acquire(ctx, "o1", 4); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ok, err := l.Acquire(ctx, "o1", 4); err != nil || ok {
		t.Fatalf("second acquire: ok=%v err=%v", ok, err)
	}
	if ok, err := l.Acquire(ctx, "o1", 6); err != nil || !ok {
		t.Fatalf("new epoch: ok=%v err=%v", ok, err)
	}
	ttl, err := rdb.TTL(ctx, "tracking:order:o1:near:4").Result()
	if err != nil || ttl <= 0 {
		t.Fatalf("latch key should expire, ttl=%v err=%v", ttl, err)
	}
}

func TestRefreshUsesLastKnownLocation(t *testing.T) {
	f := newFixture(t)
	f.enroll(t)
	o, pid := f.dispatch(t)
	ctx := context.Background()

	if _, err := f.tracking.RecordSample(ctx, location.Sample{PartnerID: pid, Point: courier, RecordedAt: time.Now().UTC().Add(-time.Minute)}); err != nil {
		t.Fatal(err)
	}
	f.eta.set(12*time.Minute, 3500)

	n, err := f.tracking.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 refreshed order, got %d", n)
	}
	got, _ := f.orders.Get(ctx, o.ID)
	if got.EstimatedDuration != 720 {
		t.Fatalf("refresh did not apply: %d", got.EstimatedDuration)
	}
}

func TestFutureSampleDoesNotBlockRefresh(t *testing.T) {
	f := newFixture(t)
	f.enroll(t)
	o, pid := f.dispatch(t)
	ctx := context.Background()

	ahead := time.Now().UTC().Add(time.Hour)
	if _, err := f.tracking.RecordSample(ctx, location.Sample{PartnerID: pid, Point: courier, RecordedAt: ahead}); err != nil {
		t.Fatal(err)
	}
	got, _ := f.orders.Get(ctx, o.ID)
	if got.LastLocationUpdate == nil || got.LastLocationUpdate.After(time.Now().UTC().Add(location.MaxClockSkew)) {
		t.Fatalf("device timestamp was not clamped: %v", got.LastLocationUpdate)
	}

	f.eta.set(12*time.Minute, 3500)
	n, err := f.tracking.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected refresh to apply after a fast-clock sample, got %d", n)
	}
	got, _ = f.orders.Get(ctx, o.ID)
	if got.EstimatedDuration != 720 {
		t.Fatalf("refresh estimate not applied: %d", got.EstimatedDuration)
	}
}

func TestRunRefresherStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.tracking.RunRefresher(ctx, 5*time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("refresher did not stop")
	}
}

func TestArriveClearsETA(t *testing.T) {
	f := newFixture(t)
	f.enroll(t)
	o, pid := f.dispatch(t)
	ctx := context.Background()

	if _, err := f.tracking.RecordSample(ctx, location.Sample{PartnerID: pid, Point: courier}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.orders.Arrive(ctx, order.PartnerCommand{OrderID: o.ID, PartnerID: pid}); err != nil {
		t.Fatalf("arrive: %v", err)
	}
	res, err := f.tracking.RecordSample(ctx, location.Sample{PartnerID: pid, Point: courier})
	if err != nil {
		t.Fatal(err)
	}
	if res.Applied {
		t.Fatalf("no ETA after arrival")
	}
	got, _ := f.orders.Get(ctx, o.ID)
	if got.EstimatedArrival != nil || got.EstimatedDuration != 0 {
		t.Fatalf("eta fields should be cleared on arrival: %+v", got)
	}
}
