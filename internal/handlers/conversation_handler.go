package handlers

import (
	"net/http"

	"whatsapp-panel-server/internal/models"
	"whatsapp-panel-server/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// ConversationHandler serves the inbox
type ConversationHandler struct {
	conversations ConversationServiceInterface
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(conversations ConversationServiceInterface) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

// List handles GET /api/conversations?connection_id=&limit=&offset=
func (h *ConversationHandler) List(c *gin.Context) {
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}
	list, err := h.conversations.List(c.Request.Context(), middleware.UserID(c), c.Query("connection_id"), limit, offset)
	if err != nil {
		respondError(c, err, "list conversations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

// Messages handles GET /api/conversations/:id/messages
func (h *ConversationHandler) Messages(c *gin.Context) {
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}
	msgs, err := h.conversations.Messages(c.Request.Context(), middleware.UserID(c), c.Param("id"), limit, offset)
	if err != nil {
		respondError(c, err, "list messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// Send handles POST /api/conversations/:id/messages
func (h *ConversationHandler) Send(c *gin.Context) {
	var req models.SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	msg, err := h.conversations.SendMessage(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.Body)
	if err != nil {
		respondError(c, err, "send message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkRead handles POST /api/conversations/:id/read
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	if err := h.conversations.MarkRead(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		respondError(c, err, "mark conversation read")
		return
	}
	c.Status(http.StatusNoContent)
}

// Delete handles DELETE /api/conversations/:id
func (h *ConversationHandler) Delete(c *gin.Context) {
	if err := h.conversations.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		respondError(c, err, "delete conversation")
		return
	}
	c.Status(http.StatusNoContent)
}
