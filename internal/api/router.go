package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"clubhouse-backend/config"
	"clubhouse-backend/internal/auth"
	"clubhouse-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg config.ServerConfig, verifier *auth.Verifier, d Deps) *gin.Engine {
	r := gin.Default()

	if d.Timeout == 0 {
		d.Timeout = time.Duration(cfg.CommandTimeoutSeconds) * time.Second
	}
	handler := NewHandler(d)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)
	requireActor := mw.RequireActor()

	api := r.Group("/api")
	api.Use(mw.Authenticate(verifier), rateLimiter, mw.Invalidate(cacheStore))
	{
		// Operational state timeline. These reads depend on the clock and on
		// scheduler sweeps, so they bypass the response cache.
		api.GET("/state/current", handler.GetCurrentState)
		api.GET("/states", handler.GetTimeline)
		api.GET("/states/:id", handler.GetState)
		api.GET("/states/:id/history", handler.GetStateHistory)
		api.POST("/states", requireActor, handler.PlanState)
		api.POST("/states/:id/close", requireActor, handler.CloseState)

		api.GET("/templates", caching, handler.ListTemplates)
		api.POST("/templates", requireActor, handler.CreateTemplate)
		api.PUT("/templates/:id", requireActor, handler.UpdateTemplate)
		api.GET("/templates/:id/history", handler.GetTemplateHistory)

		// Board game reservations
		api.GET("/categories", caching, handler.ListCategories)
		api.POST("/reservations", requireActor, handler.CreateReservation)
		api.GET("/reservations/:id", requireActor, handler.GetReservation)
		api.PUT("/reservations/:id/internal_note", requireActor, handler.SetInternalNote)
		api.POST("/reservation_items/:id/transitions", requireActor, handler.TransitionItem)
		api.GET("/reservation_items/:id/history", requireActor, handler.GetItemHistory)

		// Push notifications
		api.GET("/subscriptions", requireActor, handler.GetSubscription)
		api.PUT("/subscriptions", requireActor, handler.PutSubscription)
		api.DELETE("/subscriptions", requireActor, handler.DeleteSubscription)
		api.GET("/push_config", handler.GetPushConfig)
	}

	return r
}
