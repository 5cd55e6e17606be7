package handlers

import (
	"errors"
	"io"
	"net/http"

	"whatsapp-panel-server/internal/models"
	"whatsapp-panel-server/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// AIHandler handles assistant chat requests
type AIHandler struct {
	ai AIServiceInterface
}

// NewAIHandler creates a new AI handler
func NewAIHandler(ai AIServiceInterface) *AIHandler {
	return &AIHandler{ai: ai}
}

// ListChats handles GET /api/ai/chats
func (h *AIHandler) ListChats(c *gin.Context) {
	chats, err := h.ai.ListChats(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err, "list chats")
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// CreateChat handles POST /api/ai/chats; the body is optional
func (h *AIHandler) CreateChat(c *gin.Context) {
	var req models.CreateAIChatRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	chat, err := h.ai.CreateChat(c.Request.Context(), middleware.UserID(c), req.Title)
	if err != nil {
		respondError(c, err, "create chat")
		return
	}
	c.JSON(http.StatusCreated, chat)
}

// DeleteChat handles DELETE /api/ai/chats/:id
func (h *AIHandler) DeleteChat(c *gin.Context) {
	if err := h.ai.DeleteChat(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		respondError(c, err, "delete chat")
		return
	}
	c.Status(http.StatusNoContent)
}

// Messages handles GET /api/ai/chats/:id/messages
func (h *AIHandler) Messages(c *gin.Context) {
	msgs, err := h.ai.Messages(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "list chat messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// Send handles POST /api/ai/chats/:id/messages and returns the assistant reply
func (h *AIHandler) Send(c *gin.Context) {
	var req models.AIMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	reply, err := h.ai.SendMessage(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.Content)
	if err != nil {
		respondError(c, err, "ask the assistant")
		return
	}
	c.JSON(http.StatusCreated, reply)
}
