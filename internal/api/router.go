package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"procedure-scheduler-backend/config"
	"procedure-scheduler-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg *config.ServerConfig) *gin.Engine {
	r := gin.Default()
	r.MaxMultipartMemory = 8 << 20

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.AllowedOrigins,
			AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Content-Type"},
			ExposeHeaders: []string{"Content-Length", "Content-Disposition", "Location"},
		}))
	}

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, cfg.RequestIPHeader)

	caching := func(c *gin.Context) { c.Next() }
	if h.cache != nil {
		caching = h.cache.Handler()
	}

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/schedules", h.PostSchedule)
		api.POST("/schedules/upload", h.PostScheduleUpload)
		api.GET("/schedules/:id", h.GetSchedule)
		api.DELETE("/schedules/:id", h.CancelSchedule)
		api.GET("/schedules/:id/export", h.ExportSchedule)

		api.GET("/procedures", caching, h.GetProcedures)
		api.PUT("/procedures", h.PutProcedures)
		api.DELETE("/procedures/:name", h.DeleteProcedure)

		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
