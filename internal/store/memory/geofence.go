// README: In-process geofence settings source; Save fans out to every subscriber.
package memory

import (
	"context"
	"sync"

	"freshcart/internal/modules/geofence"
)

type Geofence struct {
	mu   sync.Mutex
	cfg  *geofence.Config
	subs map[chan geofence.Config]struct{}
}

var _ geofence.Source = (*Geofence)(nil)

func NewGeofence() *Geofence {
	return &Geofence{subs: make(map[chan geofence.Config]struct{})}
}

func (g *Geofence) Get(_ context.Context) (geofence.Config, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cfg == nil {
		return geofence.Config{}, geofence.ErrNotConfigured
	}
	return *g.cfg, nil
}

func (g *Geofence) Save(_ context.Context, cfg geofence.Config) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg = &cfg
	for ch := range g.subs {
		// drop the older pending value, the newest config wins
		select {
		case <-ch:
		default:
		}
		ch <- cfg
	}
	return nil
}

func (g *Geofence) Subscribe(ctx context.Context) (<-chan geofence.Config, error) {
	ch := make(chan geofence.Config, 1)
	g.mu.Lock()
	g.subs[ch] = struct{}{}
	g.mu.Unlock()

	go func() {
		<-ctx.Done()
		g.mu.Lock()
		delete(g.subs, ch)
		close(ch)
		g.mu.Unlock()
	}()
	return ch, nil
}
