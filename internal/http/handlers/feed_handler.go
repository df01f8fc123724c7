// README: WebSocket stream of live partner-state events for the admin dashboard.
package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"freshcart/internal/metrics"
	"freshcart/internal/modules/feed"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type FeedHandler struct {
	feed     feed.Subscriber
	upgrader websocket.Upgrader
}

func NewFeedHandler(sub feed.Subscriber) *FeedHandler {
	return &FeedHandler{
		feed: sub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// dashboard is served from a different origin; auth is the bearer token
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Partners handles GET /api/feed/partners.
func (h *FeedHandler) Partners(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events, err := h.feed.Subscribe(ctx)
	if err != nil {
		log.Printf("feed: subscribe: %v", err)
		writeError(c, http.StatusServiceUnavailable, "feed unavailable")
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		log.Printf("feed: upgrade: %v", err)
		return
	}
	defer conn.Close()

	metrics.FeedSubscribers.Inc()
	defer metrics.FeedSubscribers.Dec()

	// The reader only watches for close frames and keeps the pong deadline fresh.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
