// Package handlers exposes the HTTP API: column mappings, import jobs, ERP
// connections, monitoring and the websocket progress feed.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/EthanVT97/rangoon-middleware/internal/erp"
	"github.com/EthanVT97/rangoon-middleware/internal/importer"
	"github.com/EthanVT97/rangoon-middleware/internal/monitor"
	"github.com/EthanVT97/rangoon-middleware/internal/ws"
)

// maxUploadBytes caps import file size.
const maxUploadBytes = 10 << 20

// Handler carries the wired dependencies for all routes.
type Handler struct {
	db        *gorm.DB
	importer  *importer.Service
	erpClient *erp.Client
	monitor   *monitor.Monitor
	hub       *ws.Hub
	jwtSecret []byte
	log       zerolog.Logger
}

// New builds the handler set.
func New(db *gorm.DB, imp *importer.Service, erpClient *erp.Client, mon *monitor.Monitor, hub *ws.Hub, jwtSecret string, log zerolog.Logger) *Handler {
	return &Handler{
		db:        db,
		importer:  imp,
		erpClient: erpClient,
		monitor:   mon,
		hub:       hub,
		jwtSecret: []byte(jwtSecret),
		log:       log.With().Str("component", "http").Logger(),
	}
}

// RegisterRoutes wires every endpoint onto the router. /health, /metrics and
// the websocket upgrade stay outside the auth middleware; the websocket
// authenticates itself via query token.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", h.WebSocket)

	api := r.Group("/api/v1")
	api.Use(h.AuthRequired())
	{
		api.POST("/mappings", h.CreateMapping)
		api.GET("/mappings", h.ListMappings)
		api.GET("/mappings/:mapping_id", h.GetMapping)
		api.PUT("/mappings/:mapping_id", h.UpdateMapping)
		api.DELETE("/mappings/:mapping_id", h.DeleteMapping)

		api.POST("/imports", h.CreateImport)
		api.GET("/imports", h.ListImports)
		api.GET("/imports/:job_id", h.GetImport)
		api.POST("/imports/:job_id/cancel", h.CancelImport)

		api.GET("/monitoring/metrics", h.DashboardMetrics)
		api.GET("/monitoring/errors", h.RecentErrors)
		api.GET("/monitoring/active", h.ActiveJobs)

		api.GET("/erp/connections", h.ListERPConnections)
		api.POST("/erp/connections", h.CreateERPConnection)
		api.POST("/erp/test", h.TestERPConnection)
	}
}

// Health reports liveness; unauthenticated for load balancers.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   "rangoon-middleware",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
