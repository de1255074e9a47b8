package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cloud-consulting/email-engine/internal/interfaces"
	"github.com/cloud-consulting/email-engine/internal/monitor"
	"github.com/cloud-consulting/email-engine/internal/utils"
)

// HealthHandler exposes liveness (unauthenticated) and the Health
// Monitor tick trigger (CRON_SECRET-gated, spec §6).
type HealthHandler struct {
	monitor   *monitor.Monitor
	startedAt time.Time
	version   string
	logger    *logrus.Logger
}

func NewHealthHandler(m *monitor.Monitor, version string, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{monitor: m, startedAt: time.Now(), version: version, logger: logger}
}

// Liveness handles GET /health — a cheap process-alive check, not
// gated behind CRON_SECRET since load balancers poll it unauthenticated.
func (h *HealthHandler) Liveness(c *gin.Context) {
	status := &interfaces.OverallHealthStatus{
		Status:    interfaces.HealthStatusHealthy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
		Uptime:    int64(time.Since(h.startedAt).Seconds()),
	}
	c.JSON(http.StatusOK, status)
}

// Monitor handles GET /api/health/monitor?mode=ping|full|detailed —
// runs one Health Monitor tick (spec §4.9, §6).
func (h *HealthHandler) Monitor(c *gin.Context) {
	mode := monitor.Mode(c.DefaultQuery("mode", string(monitor.ModeFull)))
	switch mode {
	case monitor.ModePing, monitor.ModeFull, monitor.ModeDetailed:
	default:
		utils.ErrorResponse(c, http.StatusBadRequest, interfaces.ErrCodeValidation,
			"invalid mode", "mode must be one of ping, full, detailed")
		return
	}

	report, err := h.monitor.MonitorHealth(c.Request.Context(), mode)
	if err != nil {
		h.logger.WithError(err).Error("health monitor: tick failed")
		utils.InternalErrorResponse(c, err.Error())
		return
	}
	utils.SuccessResponse(c, report, "health monitor tick processed")
}
