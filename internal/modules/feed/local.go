// README: In-process feed used when Redis is not configured.
package feed

import (
	"context"
	"sync"
	"time"

	"freshcart/internal/modules/partner"
)

// LocalHub broadcasts to subscribers in this process. A subscriber that falls
// behind loses events rather than blocking publishers.
type LocalHub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

var (
	_ partner.Publisher = (*LocalHub)(nil)
	_ Subscriber        = (*LocalHub)(nil)
)

func NewLocalHub() *LocalHub {
	return &LocalHub{subs: make(map[chan Event]struct{})}
}

func (h *LocalHub) PartnerChanged(_ context.Context, p partner.Partner) {
	ev := FromPartner(p, time.Now())
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *LocalHub) Subscribe(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, ch)
		close(ch)
		h.mu.Unlock()
	}()
	return ch, nil
}
