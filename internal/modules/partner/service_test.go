// README: Partner registry tests (claim exclusivity, tie-break, release, stale sweep).
package partner_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"freshcart/internal/modules/partner"
	"freshcart/internal/store/memory"
	"freshcart/internal/types"
)

type fakeOrders struct {
	mu       sync.Mutex
	states   map[types.ID]bool // id -> terminal
	detached []types.ID
}

func (f *fakeOrders) DetachPartner(_ context.Context, orderID, _ types.ID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detached = append(f.detached, orderID)
	return true, nil
}

func (f *fakeOrders) OrderState(_ context.Context, id types.ID) (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	terminal, ok := f.states[id]
	return ok, terminal, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []partner.Partner
}

func (r *recordingPublisher) PartnerChanged(_ context.Context, p partner.Partner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, p)
}

func (r *recordingPublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newTestService(t *testing.T) (*partner.Service, *memory.Partners, *fakeOrders, *recordingPublisher) {
	t.Helper()
	store := memory.NewPartners()
	orders := &fakeOrders{states: make(map[types.ID]bool)}
	pub := &recordingPublisher{}
	return partner.NewService(store, orders, pub), store, orders, pub
}

func mustEnroll(t *testing.T, svc *partner.Service, name string) *partner.Partner {
	t.Helper()
	p, err := svc.Enroll(context.Background(), partner.EnrollCommand{
		Name:        name,
		Phone:       "+91-98400-" + name,
		VehicleType: partner.VehicleBike,
		Rating:      4.5,
	})
	if err != nil {
		t.Fatalf("enroll %s: %v", name, err)
	}
	return p
}

func assertInvariants(t *testing.T, store partner.Repository) {
	t.Helper()
	all, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	holders := make(map[types.ID]types.ID)
	for _, p := range all {
		if err := p.CheckInvariant(); err != nil {
			t.Fatal(err)
		}
		if p.CurrentOrderID == nil {
			continue
		}
		if other, ok := holders[*p.CurrentOrderID]; ok {
			t.Fatalf("order %s held by both %s and %s", *p.CurrentOrderID, other, p.ID)
		}
		holders[*p.CurrentOrderID] = p.ID
	}
}

func TestEnrollValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		cmd  partner.EnrollCommand
	}{
		{"missing name", partner.EnrollCommand{Phone: "1"}},
		{"missing phone", partner.EnrollCommand{Name: "a"}},
		{"bad vehicle", partner.EnrollCommand{Name: "a", Phone: "1", VehicleType: "truck"}},
		{"bad rating", partner.EnrollCommand{Name: "a", Phone: "1", Rating: 7}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Enroll(ctx, tc.cmd); !errors.Is(err, partner.ErrBadRequest) {
				t.Fatalf("expected ErrBadRequest, got %v", err)
			}
		})
	}

	p, err := svc.Enroll(ctx, partner.EnrollCommand{Name: "Ravi", Phone: "123"})
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if p.VehicleType != partner.VehicleBike || !p.IsActive || p.CurrentStatus != partner.StatusIdle {
		t.Fatalf("unexpected defaults: %+v", p)
	}
}

func TestAutoAssignPrefersFewestDeliveries(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	busy := mustEnroll(t, svc, "busy")
	fresh := mustEnroll(t, svc, "fresh")

	// give "busy" one completed delivery
	if _, err := svc.Claim(ctx, busy.ID, "o_prev"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := svc.CompleteDelivery(ctx, busy.ID, "o_prev"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	p, err := svc.AutoAssign(ctx, "o1")
	if err != nil {
		t.Fatalf("auto assign: %v", err)
	}
	if p.ID != fresh.ID {
		t.Fatalf("expected partner with fewest deliveries %s, got %s", fresh.ID, p.ID)
	}
	if p.CurrentStatus != partner.StatusAssigned || !p.Holds("o1") {
		t.Fatalf("unexpected partner state: %+v", p)
	}
	assertInvariants(t, store)
}

func TestAutoAssignNoPartnerAvailable(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AutoAssign(ctx, "o1"); !errors.Is(err, partner.ErrNoPartnerAvailable) {
		t.Fatalf("empty registry: expected ErrNoPartnerAvailable, got %v", err)
	}

	inactive := mustEnroll(t, svc, "inactive")
	if err := svc.Deactivate(ctx, inactive.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	offline := mustEnroll(t, svc, "offline")
	if err := svc.GoOffline(ctx, offline.ID); err != nil {
		t.Fatalf("offline: %v", err)
	}
	holder := mustEnroll(t, svc, "holder")
	if _, err := svc.Claim(ctx, holder.ID, "o0"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if _, err := svc.AutoAssign(ctx, "o1"); !errors.Is(err, partner.ErrNoPartnerAvailable) {
		t.Fatalf("expected ErrNoPartnerAvailable, got %v", err)
	}
	assertInvariants(t, store)
}

func TestAutoAssignOrderAlreadyAssigned(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	mustEnroll(t, svc, "a")
	mustEnroll(t, svc, "b")
	if _, err := svc.AutoAssign(ctx, "o1"); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	if _, err := svc.AutoAssign(ctx, "o1"); !errors.Is(err, partner.ErrOrderAlreadyAssigned) {
		t.Fatalf("expected ErrOrderAlreadyAssigned, got %v", err)
	}
	assertInvariants(t, store)
}

func TestClaimSpecificPartnerConflict(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	p := mustEnroll(t, svc, "solo")
	if _, err := svc.Claim(ctx, p.ID, "o1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := svc.Claim(ctx, p.ID, "o2"); !errors.Is(err, partner.ErrConcurrentClaimConflict) {
		t.Fatalf("expected ErrConcurrentClaimConflict, got %v", err)
	}
	if _, err := svc.Claim(ctx, "missing", "o3"); !errors.Is(err, partner.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	assertInvariants(t, store)
}

// Two orders race for the only idle partner: exactly one wins.
func TestConcurrentAutoAssignSinglePartner(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	only := mustEnroll(t, svc, "only")

	orders := []types.ID{"o1", "o2"}
	errs := make(chan error, len(orders))
	start := make(chan struct{})
	var wg sync.WaitGroup

	for _, id := range orders {
		wg.Add(1)
		go func(oid types.ID) {
			defer wg.Done()
			<-start
			_, err := svc.AutoAssign(ctx, oid)
			errs <- err
		}(id)
	}
	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, partner.ErrNoPartnerAvailable) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 success, got %d", success)
	}

	p, err := svc.Get(ctx, only.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.CurrentOrderID == nil || (*p.CurrentOrderID != "o1" && *p.CurrentOrderID != "o2") {
		t.Fatalf("expected partner to hold one of the orders, got %v", p.CurrentOrderID)
	}
	assertInvariants(t, store)
}

func TestConcurrentAutoAssignManyOrders(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	const partners, orders = 5, 12
	for i := 0; i < partners; i++ {
		mustEnroll(t, svc, fmt.Sprintf("p%d", i))
	}

	var mu sync.Mutex
	assigned := make(map[types.ID]types.ID)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < orders; i++ {
		wg.Add(1)
		go func(oid types.ID) {
			defer wg.Done()
			<-start
			p, err := svc.AutoAssign(ctx, oid)
			if errors.Is(err, partner.ErrNoPartnerAvailable) {
				return
			}
			if err != nil {
				t.Errorf("auto assign %s: %v", oid, err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for o, pid := range assigned {
				if pid == p.ID {
					t.Errorf("partner %s assigned to both %s and %s", p.ID, o, oid)
				}
			}
			assigned[oid] = p.ID
		}(types.ID(fmt.Sprintf("o%d", i)))
	}
	close(start)
	wg.Wait()

	if len(assigned) != partners {
		t.Fatalf("expected every partner to be claimed once, got %d assignments", len(assigned))
	}
	assertInvariants(t, store)
}

func TestConcurrentAutoAssignSameOrder(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		mustEnroll(t, svc, fmt.Sprintf("p%d", i))
	}

	const attempts = 8
	errs := make(chan error, attempts)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.AutoAssign(ctx, "o1")
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, partner.ErrOrderAlreadyAssigned) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 success, got %d", success)
	}
	assertInvariants(t, store)
}

func TestAdvanceAndComplete(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()
	p := mustEnroll(t, svc, "rider")

	if err := svc.AdvanceStatus(ctx, p.ID, "o1", partner.StatusPickup); !errors.Is(err, partner.ErrNotHolding) {
		t.Fatalf("advance without holding: expected ErrNotHolding, got %v", err)
	}
	if _, err := svc.Claim(ctx, p.ID, "o1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := svc.AdvanceStatus(ctx, p.ID, "o1", partner.StatusIdle); !errors.Is(err, partner.ErrBadRequest) {
		t.Fatalf("advance to idle: expected ErrBadRequest, got %v", err)
	}
	for _, st := range []partner.Status{partner.StatusPickup, partner.StatusNavigating, partner.StatusReached} {
		if err := svc.AdvanceStatus(ctx, p.ID, "o1", st); err != nil {
			t.Fatalf("advance %s: %v", st, err)
		}
		assertInvariants(t, store)
	}
	if err := svc.Deactivate(ctx, p.ID); !errors.Is(err, partner.ErrBusy) {
		t.Fatalf("deactivate busy: expected ErrBusy, got %v", err)
	}
	if err := svc.GoOffline(ctx, p.ID); !errors.Is(err, partner.ErrBusy) {
		t.Fatalf("offline busy: expected ErrBusy, got %v", err)
	}
	if err := svc.CompleteDelivery(ctx, p.ID, "o2"); !errors.Is(err, partner.ErrNotHolding) {
		t.Fatalf("complete other order: expected ErrNotHolding, got %v", err)
	}
	if err := svc.CompleteDelivery(ctx, p.ID, "o1"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, _ := svc.Get(ctx, p.ID)
	if got.CurrentStatus != partner.StatusIdle || got.CurrentOrderID != nil || got.TotalDeliveries != 1 {
		t.Fatalf("unexpected partner after delivery: %+v", got)
	}
	assertInvariants(t, store)
}

func TestReleaseIfHoldingIsConditional(t *testing.T) {
	svc, store, orders, _ := newTestService(t)
	ctx := context.Background()
	p := mustEnroll(t, svc, "rider")

	if _, err := svc.Claim(ctx, p.ID, "o1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	ok, err := svc.ReleaseIfHolding(ctx, p.ID, "o_other")
	if err != nil || ok {
		t.Fatalf("release for other order: ok=%v err=%v", ok, err)
	}
	ok, err = svc.ReleaseIfHolding(ctx, p.ID, "o1")
	if err != nil || !ok {
		t.Fatalf("release: ok=%v err=%v", ok, err)
	}
	assertInvariants(t, store)

	if _, err := svc.Claim(ctx, p.ID, "o2"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := svc.Release(ctx, p.ID); err != nil {
		t.Fatalf("unconditional release: %v", err)
	}
	if len(orders.detached) != 1 || orders.detached[0] != "o2" {
		t.Fatalf("expected o2 detached on release, got %v", orders.detached)
	}
	got, _ := svc.Get(ctx, p.ID)
	if got.CurrentOrderID != nil || got.CurrentStatus != partner.StatusIdle {
		t.Fatalf("unexpected partner after release: %+v", got)
	}
	assertInvariants(t, store)
}

func TestCleanupStaleAssignments(t *testing.T) {
	svc, store, orders, _ := newTestService(t)
	ctx := context.Background()

	active := mustEnroll(t, svc, "active")
	done := mustEnroll(t, svc, "done")
	ghost := mustEnroll(t, svc, "ghost")
	idle := mustEnroll(t, svc, "idle")

	orders.states["o_active"] = false
	orders.states["o_done"] = true
	for pid, oid := range map[types.ID]types.ID{active.ID: "o_active", done.ID: "o_done", ghost.ID: "o_missing"} {
		if _, err := svc.Claim(ctx, pid, oid); err != nil {
			t.Fatalf("claim %s: %v", oid, err)
		}
	}

	n, err := svc.CleanupStaleAssignments(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 reclaimed, got %d", n)
	}

	for _, id := range []types.ID{done.ID, ghost.ID, idle.ID} {
		p, _ := svc.Get(ctx, id)
		if p.CurrentOrderID != nil || p.CurrentStatus != partner.StatusIdle {
			t.Fatalf("partner %s not released: %+v", id, p)
		}
	}
	p, _ := svc.Get(ctx, active.ID)
	if !p.Holds("o_active") {
		t.Fatalf("partner on a live order was released")
	}
	assertInvariants(t, store)

	n, err = svc.CleanupStaleAssignments(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second sweep: n=%d err=%v", n, err)
	}
}

func TestOnlineOfflineAndLocation(t *testing.T) {
	svc, _, _, pub := newTestService(t)
	ctx := context.Background()
	p := mustEnroll(t, svc, "rider")
	before := pub.count()

	if err := svc.GoOffline(ctx, p.ID); err != nil {
		t.Fatalf("offline: %v", err)
	}
	if _, err := svc.AutoAssign(ctx, "o1"); !errors.Is(err, partner.ErrNoPartnerAvailable) {
		t.Fatalf("offline partner was assignable: %v", err)
	}
	if err := svc.GoOnline(ctx, p.ID); err != nil {
		t.Fatalf("online: %v", err)
	}
	if err := svc.UpdateLocation(ctx, p.ID, types.Point{Lat: 13.05, Lng: 80.25}, p.JoinedAt); err != nil {
		t.Fatalf("update location: %v", err)
	}
	if err := svc.UpdateLocation(ctx, p.ID, types.Point{Lat: 91, Lng: 0}, p.JoinedAt); !errors.Is(err, partner.ErrBadRequest) {
		t.Fatalf("invalid location: expected ErrBadRequest, got %v", err)
	}
	got, _ := svc.Get(ctx, p.ID)
	if got.CurrentLocation == nil || got.CurrentLocation.Lat != 13.05 {
		t.Fatalf("location not stored: %+v", got.CurrentLocation)
	}
	if pub.count()-before != 3 {
		t.Fatalf("expected 3 feed events, got %d", pub.count()-before)
	}
}
