// README: Live tracking handlers: partner location samples and the customer map history.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"freshcart/internal/http/middleware"
	"freshcart/internal/modules/location"
	"freshcart/internal/modules/order"
	"freshcart/internal/types"
)

type LocationHandler struct {
	location *location.Service
	order    *order.Service
}

func NewLocationHandler(svc *location.Service, orderSvc *order.Service) *LocationHandler {
	return &LocationHandler{location: svc, order: orderSvc}
}

type locationReq struct {
	Lat        *float64   `json:"lat"`
	Lng        *float64   `json:"lng"`
	RecordedAt *time.Time `json:"recordedAt"`
}

// Update handles PUT /api/partners/:id/location, sent by the partner app
// roughly every 30 seconds.
func (h *LocationHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	// Only the authenticated partner may update their own location.
	if middleware.CallerUID(c) != id {
		writeError(c, http.StatusForbidden, "forbidden: id does not match authenticated user")
		return
	}
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Lat == nil || req.Lng == nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	smp := location.Sample{
		PartnerID: types.ID(id),
		Point:     types.Point{Lat: *req.Lat, Lng: *req.Lng},
	}
	if req.RecordedAt != nil {
		smp.RecordedAt = req.RecordedAt.UTC()
	}
	res, err := h.location.RecordSample(c.Request.Context(), smp)
	if err != nil {
		writePartnerError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

// History handles GET /api/orders/:id/locations?limit=.
func (h *LocationHandler) History(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := h.order.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	if !canView(c, o) {
		writeError(c, http.StatusForbidden, "forbidden: not your order")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	snaps, err := h.location.History(c.Request.Context(), o.ID, limit)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	if snaps == nil {
		snaps = []location.Snapshot{}
	}
	writeJSON(c, http.StatusOK, gin.H{"orderId": o.ID, "locations": snaps})
}
