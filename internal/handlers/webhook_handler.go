package handlers

import (
	"net/http"

	"whatsapp-panel-server/pkg/evolution"
	"whatsapp-panel-server/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebhookHandler receives Evolution API events
type WebhookHandler struct {
	webhooks WebhookServiceInterface
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(webhooks WebhookServiceInterface) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// Evolution handles POST /webhooks/evolution.
// Processing failures answer 500 so the gateway retries the delivery.
func (h *WebhookHandler) Evolution(c *gin.Context) {
	var event evolution.WebhookEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		logger.Warn("Invalid webhook payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	if event.Event == "" || event.Instance == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event and instance are required"})
		return
	}

	if err := h.webhooks.HandleEvent(c.Request.Context(), &event); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process event"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
