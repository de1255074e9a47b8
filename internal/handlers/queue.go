package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cloud-consulting/email-engine/internal/utils"
	"github.com/cloud-consulting/email-engine/internal/worker"
)

// QueueHandler exposes the worker's tick trigger over HTTP (spec §6).
// Protected by the CRON_SECRET bearer middleware at the router level.
type QueueHandler struct {
	worker *worker.Worker
	logger *logrus.Logger
}

func NewQueueHandler(w *worker.Worker, logger *logrus.Logger) *QueueHandler {
	return &QueueHandler{worker: w, logger: logger}
}

// Process handles POST /api/queue/process — runs one worker tick.
func (h *QueueHandler) Process(c *gin.Context) {
	tick, err := h.worker.ProcessQueue(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("queue process: tick failed")
		utils.InternalErrorResponse(c, err.Error())
		return
	}
	utils.SuccessResponse(c, tick, "queue tick processed")
}
