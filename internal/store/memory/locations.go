// README: In-process location snapshot history.
package memory

import (
	"context"
	"sort"
	"sync"

	"freshcart/internal/modules/location"
	"freshcart/internal/types"
)

type Locations struct {
	mu     sync.Mutex
	snaps  []location.Snapshot
	nextID int64
}

var _ location.SnapshotStore = (*Locations)(nil)

func NewLocations() *Locations {
	return &Locations{}
}

func (s *Locations) AppendSnapshot(_ context.Context, snap *location.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	snap.ID = s.nextID
	s.snaps = append(s.snaps, *snap)
	return nil
}

func (s *Locations) ListByOrder(_ context.Context, orderID types.ID, limit int) ([]location.Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	var out []location.Snapshot
	for _, snap := range s.snaps {
		if snap.OrderID != nil && *snap.OrderID == orderID {
			out = append(out, snap)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
