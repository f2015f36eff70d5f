package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/duetapp/duet-api/internal/service"
)

// MetricsHandler serves the scrape and liveness endpoints.
type MetricsHandler struct {
	metrics *service.MetricsService
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics *service.MetricsService) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Prometheus serves the metrics registry in exposition format.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health is the liveness probe. Readiness, which checks the database,
// is wired separately.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
