package handlers

import (
	"net/http"
	"time"

	"whatsapp-panel-server/internal/models"
	"whatsapp-panel-server/pkg/logger"
	"whatsapp-panel-server/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ScheduledHandler handles scheduled message requests and the cron trigger
type ScheduledHandler struct {
	scheduled  SchedulerServiceInterface
	dispatcher DispatcherInterface
}

// NewScheduledHandler creates a new scheduled message handler
func NewScheduledHandler(scheduled SchedulerServiceInterface, dispatcher DispatcherInterface) *ScheduledHandler {
	return &ScheduledHandler{scheduled: scheduled, dispatcher: dispatcher}
}

// List handles GET /api/scheduled-messages?status=&limit=&offset=
func (h *ScheduledHandler) List(c *gin.Context) {
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}
	list, err := h.scheduled.List(c.Request.Context(), middleware.UserID(c), c.Query("status"), limit, offset)
	if err != nil {
		respondError(c, err, "list scheduled messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"scheduled_messages": list})
}

// Get handles GET /api/scheduled-messages/:id
func (h *ScheduledHandler) Get(c *gin.Context) {
	m, err := h.scheduled.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "load scheduled message")
		return
	}
	c.JSON(http.StatusOK, m)
}

// Create handles POST /api/scheduled-messages
func (h *ScheduledHandler) Create(c *gin.Context) {
	var req models.ScheduledMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	m, err := h.scheduled.Create(c.Request.Context(), middleware.UserID(c), &req)
	if err != nil {
		respondError(c, err, "schedule message")
		return
	}
	c.JSON(http.StatusCreated, m)
}

// Update handles PUT /api/scheduled-messages/:id
func (h *ScheduledHandler) Update(c *gin.Context) {
	var req models.ScheduledMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	m, err := h.scheduled.Update(c.Request.Context(), middleware.UserID(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err, "update scheduled message")
		return
	}
	c.JSON(http.StatusOK, m)
}

// Cancel handles POST /api/scheduled-messages/:id/cancel
func (h *ScheduledHandler) Cancel(c *gin.Context) {
	if err := h.scheduled.Cancel(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		respondError(c, err, "cancel scheduled message")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.ScheduledCancelled})
}

// Delete handles DELETE /api/scheduled-messages/:id
func (h *ScheduledHandler) Delete(c *gin.Context) {
	if err := h.scheduled.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		respondError(c, err, "delete scheduled message")
		return
	}
	c.Status(http.StatusNoContent)
}

// ProcessDue handles POST /api/cron/process-scheduled-messages.
// The route is guarded by the cron secret, not a user token.
func (h *ScheduledHandler) ProcessDue(c *gin.Context) {
	res, err := h.dispatcher.ProcessDue(c.Request.Context(), time.Now())
	if err != nil {
		respondError(c, err, "process scheduled messages")
		return
	}
	logger.Info("Scheduled messages processed by cron",
		zap.Int("processed", res.Processed),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.String("event_type", "cron_dispatch"),
	)
	c.JSON(http.StatusOK, res)
}
