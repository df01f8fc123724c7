// README: Dispatcher lookup of idle partners near a point (the store by default).
package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"freshcart/internal/modules/geofence"
	"freshcart/internal/modules/matching"
	"freshcart/internal/types"
)

type MatchingHandler struct {
	matching *matching.Service
	geofence *geofence.Service
}

func NewMatchingHandler(svc *matching.Service, area *geofence.Service) *MatchingHandler {
	return &MatchingHandler{matching: svc, geofence: area}
}

// Nearby handles GET /api/admin/partners/nearby?lat=&lng=&radiusKm=&limit=.
// Without lat/lng the search is centred on the service-area center.
func (h *MatchingHandler) Nearby(c *gin.Context) {
	var p types.Point
	if c.Query("lat") == "" && c.Query("lng") == "" {
		cur := h.geofence.Current()
		p = types.Point{Lat: cur.CenterLat, Lng: cur.CenterLng}
	} else {
		var ok bool
		if p, ok = queryPoint(c); !ok {
			writeError(c, http.StatusBadRequest, "valid lat and lng are required")
			return
		}
	}
	radius, err := strconv.ParseFloat(c.DefaultQuery("radiusKm", "0"), 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid radiusKm")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid limit")
		return
	}

	found, err := h.matching.Nearby(c.Request.Context(), p, radius, limit)
	switch {
	case errors.Is(err, matching.ErrInvalidQuery):
		writeError(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log.Printf("http: nearby partners: %v", err)
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	if found == nil {
		found = []matching.Candidate{}
	}
	writeJSON(c, http.StatusOK, gin.H{"center": p, "partners": found})
}
