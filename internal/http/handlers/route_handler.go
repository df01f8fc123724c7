// README: Route alternatives for a partner's current delivery.
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"freshcart/internal/geo"
	"freshcart/internal/http/middleware"
	"freshcart/internal/maps"
	"freshcart/internal/modules/order"
	"freshcart/internal/modules/partner"
	"freshcart/internal/types"
)

type RouteHandler struct {
	routes   *maps.RouteService
	order    *order.Service
	partners *partner.Service
}

func NewRouteHandler(routes *maps.RouteService, orderSvc *order.Service, partnerSvc *partner.Service) *RouteHandler {
	return &RouteHandler{routes: routes, order: orderSvc, partners: partnerSvc}
}

// Alternatives handles GET /api/partner/orders/:id/routes. The origin is the
// partner's last reported position unless lat/lng are given. Picking a route
// is client-side only.
func (h *RouteHandler) Alternatives(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	o, err := h.order.Get(ctx, types.ID(id))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	uid := types.ID(middleware.CallerUID(c))
	if !o.AssignedTo(uid) {
		writeError(c, http.StatusForbidden, "forbidden: order is not assigned to you")
		return
	}
	if o.DeliveryCoordinates == nil {
		writeError(c, http.StatusUnprocessableEntity, maps.ErrRoutingUnavailable.Error())
		return
	}

	origin, ok := queryPoint(c)
	if !ok {
		p, err := h.partners.Get(ctx, uid)
		if err != nil {
			writePartnerError(c, err)
			return
		}
		if p.CurrentLocation == nil {
			writeError(c, http.StatusBadRequest, "no known partner location; pass lat and lng")
			return
		}
		origin = *p.CurrentLocation
	}

	dest := *o.DeliveryCoordinates
	routes, err := h.routes.RouteAlternatives(ctx, origin, dest)
	if errors.Is(err, maps.ErrRoutingUnavailable) {
		km := geo.HaversineKm(origin.Lat, origin.Lng, dest.Lat, dest.Lng)
		writeJSON(c, http.StatusOK, gin.H{"orderId": o.ID, "routes": []maps.RouteOption{}, "fallback": maps.FallbackETA(km, time.Now())})
		return
	}
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"orderId": o.ID, "routes": routes})
}

func queryPoint(c *gin.Context) (types.Point, bool) {
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lng, err2 := strconv.ParseFloat(c.Query("lng"), 64)
	if err1 != nil || err2 != nil {
		return types.Point{}, false
	}
	p := types.Point{Lat: lat, Lng: lng}
	return p, p.Valid()
}
