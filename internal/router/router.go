package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/eventbooking/ticketing/internal/config"
	"github.com/eventbooking/ticketing/internal/handler"
	"github.com/eventbooking/ticketing/internal/middleware"
)

// Register wires every route of the service onto the Echo instance.
//
// Public routes: health check and the read-only availability view.
// Protected routes require a bearer token from the external auth
// service; reserve and purchase additionally pass through the
// Redis-backed rate limiter so scripted buyers cannot starve humans.
func Register(e *echo.Echo, t *handler.TicketHandler, p *handler.PaymentHandler, jwtSecret string, rlCfg config.RateLimitConfig, rdb *redis.Client) {
	e.GET("/healthz", handler.Health)
	e.GET("/v1/tickets/availability/:eventId", t.Availability)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole("CUSTOMER", "ADMIN"))

	limited := auth.Group("")
	limited.Use(middleware.NewTokenBucket(rlCfg, rdb))
	limited.POST("/tickets/reserve", t.Reserve)
	limited.POST("/payments/purchase-tickets", p.Purchase)

	auth.POST("/tickets/reservations/:id/release", t.Release)
	auth.GET("/payments/sagas/:key", p.PurchaseStatus)
	auth.GET("/payments/orders/:id", p.GetOrder)
	auth.POST("/payments/orders/:id/cancel", p.CancelOrder)
}
