// README: Service-area handlers: public lookup and check, admin update.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"freshcart/internal/modules/geofence"
)

type GeofenceHandler struct {
	geofence *geofence.Service
}

func NewGeofenceHandler(svc *geofence.Service) *GeofenceHandler {
	return &GeofenceHandler{geofence: svc}
}

func (h *GeofenceHandler) Get(c *gin.Context) {
	writeJSON(c, http.StatusOK, h.geofence.Current())
}

// Check handles GET /api/geofence/check?lat=&lng=.
func (h *GeofenceHandler) Check(c *gin.Context) {
	p, ok := queryPoint(c)
	if !ok {
		writeError(c, http.StatusBadRequest, "valid lat and lng are required")
		return
	}
	ev := h.geofence.Evaluator()
	writeJSON(c, http.StatusOK, gin.H{
		"inside":     ev.IsWithinGeofence(p.Lat, p.Lng),
		"distanceKm": ev.DistanceFromCenter(p.Lat, p.Lng),
		"radiusKm":   ev.Current().RadiusKm,
	})
}

// Update handles PUT /api/admin/geofence.
func (h *GeofenceHandler) Update(c *gin.Context) {
	var cfg geofence.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	saved, err := h.geofence.Update(c.Request.Context(), cfg)
	if err != nil {
		writeGeofenceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, saved)
}
