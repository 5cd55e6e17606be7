package handlers

import (
	"net/http"

	"whatsapp-panel-server/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// LogHandler exposes activity and system logs
type LogHandler struct {
	logs LogServiceInterface
}

// NewLogHandler creates a new log handler
func NewLogHandler(logs LogServiceInterface) *LogHandler {
	return &LogHandler{logs: logs}
}

// Activity handles GET /api/logs/activity
func (h *LogHandler) Activity(c *gin.Context) {
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}
	entries, err := h.logs.ListActivity(c.Request.Context(), middleware.UserID(c), limit, offset)
	if err != nil {
		respondError(c, err, "list activity")
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries})
}

// System handles GET /api/logs/system?level= (admin only)
func (h *LogHandler) System(c *gin.Context) {
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}
	entries, err := h.logs.ListSystem(c.Request.Context(), c.Query("level"), limit, offset)
	if err != nil {
		respondError(c, err, "list system logs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries})
}
