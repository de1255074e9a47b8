package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cloud-consulting/email-engine/internal/domain"
	"github.com/cloud-consulting/email-engine/internal/enqueueapi"
	"github.com/cloud-consulting/email-engine/internal/interfaces"
	"github.com/cloud-consulting/email-engine/internal/utils"
)

// EnqueueHandler exposes the producer-facing Enqueue API over HTTP
// (spec §4.11, §6).
type EnqueueHandler struct {
	api    *enqueueapi.API
	logger *logrus.Logger
}

func NewEnqueueHandler(api *enqueueapi.API, logger *logrus.Logger) *EnqueueHandler {
	return &EnqueueHandler{api: api, logger: logger}
}

// Enqueue handles POST /api/emails.
func (h *EnqueueHandler) Enqueue(c *gin.Context) {
	var req enqueueapi.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ValidationErrorResponse(c, err)
		return
	}

	var callerSubject *string
	if subject, ok := c.Get("caller_subject"); ok {
		if s, ok := subject.(string); ok && s != "" {
			callerSubject = &s
		}
	}

	resp, err := h.api.Enqueue(c.Request.Context(), req, callerSubject)
	if err != nil {
		h.writeEnqueueError(c, err)
		return
	}

	utils.CreatedResponse(c, resp, "email queued")
}

func (h *EnqueueHandler) writeEnqueueError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		utils.ErrorResponse(c, http.StatusBadRequest, interfaces.ErrCodeValidation, "invalid request", err.Error())
	case errors.Is(err, domain.ErrSuppressed):
		utils.ErrorResponse(c, http.StatusConflict, interfaces.ErrCodeConflict, "recipient is suppressed", err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		utils.ErrorResponse(c, http.StatusTooManyRequests, interfaces.ErrCodeRateLimit, "too many requests for this recipient", err.Error())
	default:
		h.logger.WithError(err).Error("enqueue: unexpected error")
		utils.InternalErrorResponse(c, err.Error())
	}
}
