package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gridwatch/internal/alerting"
	"gridwatch/internal/db"
	"gridwatch/internal/metrics"
	"gridwatch/internal/syncer"
	"gridwatch/internal/ws"
)

// Handler bundles the core services the HTTP layer exposes.
type Handler struct {
	Store     *db.DB
	Generator *alerting.Generator
	Poller    *syncer.Poller
	Hub       *ws.Hub
}

// NewRouter wires all routes onto a gin engine.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestMetrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if h.Hub != nil {
		r.GET("/ws", func(c *gin.Context) { h.Hub.Serve(c.Writer, c.Request) })
	}

	api := r.Group("/api")
	{
		api.GET("/devices", h.listDevices)
		api.POST("/devices", h.createDevice)
		api.GET("/devices/:id", h.getDevice)
		api.PUT("/devices/:id", h.updateDevice)
		api.DELETE("/devices/:id", h.deleteDevice)

		api.GET("/macs", h.listBindings)
		api.POST("/macs", h.createBinding)
		api.DELETE("/macs/:id", h.deleteBinding)

		api.GET("/readings", h.listReadings)
		api.POST("/readings", h.ingestReading)
		api.GET("/readings/latest/:deviceID", h.latestReading)
		api.DELETE("/readings", h.purgeReadings)

		api.GET("/alerts", h.listAlerts)
		api.PUT("/alerts/resolve-all", h.resolveAllAlerts)
		api.PUT("/alerts/:id/resolve", h.resolveAlert)
		api.DELETE("/alerts/cleanup", h.cleanupAlerts)

		api.GET("/settings", h.getSettings)
		api.PUT("/settings", h.updateSettings)
		api.POST("/settings/reset", h.resetSettings)

		api.POST("/alerts/generator/start", h.startGenerator)
		api.POST("/alerts/generator/stop", h.stopGenerator)
		api.GET("/alerts/generator/status", h.generatorStatus)

		api.POST("/sync/start", h.startSync)
		api.POST("/sync/stop", h.stopSync)
		api.GET("/sync/status", h.syncStatus)

		api.GET("/stats", h.stats)
	}
	return r
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method, path, strconv.Itoa(c.Writer.Status()),
		).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).
			Observe(time.Since(start).Seconds())
	}
}

func (h *Handler) health(c *gin.Context) {
	sqlDB, err := h.Store.ORM.DB()
	if err == nil {
		err = sqlDB.Ping()
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) stats(c *gin.Context) {
	st, err := h.Store.CollectStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}
