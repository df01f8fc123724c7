// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"freshcart/internal/http/handlers"
	"freshcart/internal/http/middleware"
	"freshcart/internal/infra"
	"freshcart/internal/maps"
	"freshcart/internal/modules/feed"
	"freshcart/internal/modules/geofence"
	"freshcart/internal/modules/location"
	"freshcart/internal/modules/matching"
	"freshcart/internal/modules/order"
	"freshcart/internal/modules/partner"
)

type ServerDeps struct {
	Order    *order.Service
	Partner  *partner.Service
	Location *location.Service
	Geofence *geofence.Service
	Routes   *maps.RouteService
	Matching *matching.Service
	Feed     feed.Subscriber
	Verifier infra.TokenVerifier
	Redis    *redis.Client         // optional, enables Idempotency-Key replay
	NewRelic *newrelic.Application // optional
}

func NewRouter(deps ServerDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.Logging())
	if deps.NewRelic != nil {
		r.Use(nrgin.Middleware(deps.NewRelic))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	orderHandler := handlers.NewOrderHandler(deps.Order)
	partnerHandler := handlers.NewPartnerHandler(deps.Partner)
	locationHandler := handlers.NewLocationHandler(deps.Location, deps.Order)
	geofenceHandler := handlers.NewGeofenceHandler(deps.Geofence)
	routeHandler := handlers.NewRouteHandler(deps.Routes, deps.Order, deps.Partner)
	feedHandler := handlers.NewFeedHandler(deps.Feed)
	matchingHandler := handlers.NewMatchingHandler(deps.Matching, deps.Geofence)

	public := r.Group("/api")
	public.GET("/geofence", geofenceHandler.Get)
	public.GET("/geofence/check", geofenceHandler.Check)

	api := r.Group("/api", middleware.Auth(deps.Verifier), middleware.Idempotency(deps.Redis))

	// customer (plus the assigned partner and admins for reads)
	api.POST("/orders", orderHandler.Create)
	api.GET("/orders/:id", orderHandler.Get)
	api.GET("/orders/:id/timeline", orderHandler.Timeline)
	api.GET("/orders/:id/locations", locationHandler.History)
	api.POST("/orders/:id/confirm-delivery", middleware.RequireRole(middleware.RoleCustomer), orderHandler.ConfirmDelivery)

	partners := api.Group("/partners")
	partners.GET("/:id", partnerHandler.Get)
	partners.PUT("/:id/location", middleware.RequireRole(middleware.RolePartner), locationHandler.Update)
	partners.POST("/:id/online", middleware.RequireRole(middleware.RolePartner), partnerHandler.GoOnline)
	partners.POST("/:id/offline", middleware.RequireRole(middleware.RolePartner), partnerHandler.GoOffline)

	partnerOrders := api.Group("/partner/orders", middleware.RequireRole(middleware.RolePartner))
	partnerOrders.POST("/:id/accept", orderHandler.PartnerAccept)
	partnerOrders.POST("/:id/pickup", orderHandler.PickUp)
	partnerOrders.POST("/:id/arrive", orderHandler.Arrive)
	partnerOrders.POST("/:id/deliver", orderHandler.Deliver)
	partnerOrders.GET("/:id/routes", routeHandler.Alternatives)

	admin := api.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
	admin.GET("/orders", orderHandler.List)
	admin.POST("/orders/:id/accept", orderHandler.Accept)
	admin.POST("/orders/:id/reject", orderHandler.Reject)
	admin.POST("/orders/:id/cancel", orderHandler.Cancel)
	admin.POST("/orders/:id/assign", orderHandler.Assign)
	admin.POST("/orders/:id/otp", orderHandler.ReissueOTP)
	admin.GET("/partners", partnerHandler.List)
	admin.POST("/partners", partnerHandler.Enroll)
	admin.GET("/partners/nearby", matchingHandler.Nearby)
	admin.POST("/partners/cleanup", partnerHandler.Cleanup)
	admin.POST("/partners/:id/release", partnerHandler.Release)
	admin.POST("/partners/:id/deactivate", partnerHandler.Deactivate)
	admin.POST("/partners/:id/reactivate", partnerHandler.Reactivate)
	admin.PUT("/geofence", geofenceHandler.Update)

	api.GET("/feed/partners", middleware.RequireRole(middleware.RoleAdmin), feedHandler.Partners)

	return r
}
