package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"livestock-collar-backend/config"
	"livestock-collar-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(svc Services, cfg config.ServerConfig) *gin.Engine {
	handler := NewHandler(svc, cfg.MaxUploadBytes)

	r := gin.New()
	r.Use(mw.Recovery(handler.Log), mw.RequestLogger(handler.Log.Named("http")))
	r.MaxMultipartMemory = cfg.MaxUploadBytes

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateBurst)

	responses := mw.NewResponseCache(time.Duration(cfg.CacheTTLSeconds) * time.Second)
	caching := responses.Middleware()

	r.GET("/healthz", handler.Health)

	api := r.Group("/api")
	api.Use(rateLimiter, mw.Actor())
	{
		collars := api.Group("/collars", caching)
		collars.GET("", handler.ListCollars)
		collars.POST("", handler.CreateCollar)
		collars.POST("/batch", handler.CreateCollarBatch)
		collars.GET("/available", handler.AvailableCollars)
		collars.GET("/states", handler.ListStates)
		collars.GET("/export", handler.ExportCollars)
		collars.GET("/template", handler.ImportTemplate)
		collars.POST("/import", handler.ImportCollars)
		collars.GET("/import/:batch_id/detail", handler.ImportDetail)
		collars.GET("/:id", handler.GetCollar)
		collars.PATCH("/:id", handler.UpdateCollar)
		collars.DELETE("/:id", handler.DeleteCollar)
		collars.PUT("/:id/assignment", handler.AssignCollar)
		collars.DELETE("/:id/assignment", handler.UnassignCollar)
		collars.GET("/:id/history", handler.CollarHistory)

		api.GET("/fields/:field_id/geofence", caching, handler.FieldGeofence)

		// Samples change battery and activity shown in collar reads.
		api.POST("/telemetry", caching, handler.IngestTelemetry)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
