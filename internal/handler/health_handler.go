package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/guidexpert/counsellor-api/internal/service"
	appErrors "github.com/guidexpert/counsellor-api/pkg/errors"
	"github.com/guidexpert/counsellor-api/pkg/response"
)

// HealthHandler serves liveness, readiness and metrics endpoints.
type HealthHandler struct {
	db      *sqlx.DB
	metrics *service.MetricsService
	started time.Time
}

// NewHealthHandler constructs HealthHandler.
func NewHealthHandler(db *sqlx.DB, metrics *service.MetricsService) *HealthHandler {
	return &HealthHandler{db: db, metrics: metrics, started: time.Now()}
}

// Health godoc
// @Summary Liveness probe
// @Tags Ops
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	response.JSON(c, http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.started).String(),
	}, nil)
}

// Ready godoc
// @Summary Readiness probe, pings the database
// @Tags Ops
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.db != nil {
		if err := h.db.PingContext(c.Request.Context()); err != nil {
			response.Error(c, appErrors.Wrap(err, "NOT_READY", http.StatusServiceUnavailable, "database unreachable"))
			return
		}
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "ready"}, nil)
}

// Metrics serves the Prometheus scrape endpoint.
func (h *HealthHandler) Metrics(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}
