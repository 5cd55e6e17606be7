package handlers

import (
	"net/http"

	"whatsapp-panel-server/internal/models"
	"whatsapp-panel-server/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// ConnectionHandler handles WhatsApp connection requests
type ConnectionHandler struct {
	connections ConnectionServiceInterface
}

// NewConnectionHandler creates a new connection handler
func NewConnectionHandler(connections ConnectionServiceInterface) *ConnectionHandler {
	return &ConnectionHandler{connections: connections}
}

// List handles GET /api/connections
func (h *ConnectionHandler) List(c *gin.Context) {
	list, err := h.connections.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err, "list connections")
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": list})
}

// Create handles POST /api/connections
func (h *ConnectionHandler) Create(c *gin.Context) {
	var req models.CreateConnectionRequest
	if !bindJSON(c, &req) {
		return
	}
	conn, err := h.connections.Create(c.Request.Context(), middleware.UserID(c), req.Name)
	if err != nil {
		respondError(c, err, "create connection")
		return
	}
	c.JSON(http.StatusCreated, conn)
}

// Get handles GET /api/connections/:id
func (h *ConnectionHandler) Get(c *gin.Context) {
	conn, err := h.connections.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "load connection")
		return
	}
	c.JSON(http.StatusOK, conn)
}

// Connect handles POST /api/connections/:id/connect and returns the QR code
func (h *ConnectionHandler) Connect(c *gin.Context) {
	conn, err := h.connections.Connect(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "connect")
		return
	}
	c.JSON(http.StatusOK, conn)
}

// Refresh handles POST /api/connections/:id/refresh
func (h *ConnectionHandler) Refresh(c *gin.Context) {
	conn, err := h.connections.RefreshState(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "refresh connection state")
		return
	}
	c.JSON(http.StatusOK, conn)
}

// Logout handles POST /api/connections/:id/logout
func (h *ConnectionHandler) Logout(c *gin.Context) {
	conn, err := h.connections.Disconnect(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "log out")
		return
	}
	c.JSON(http.StatusOK, conn)
}

// Delete handles DELETE /api/connections/:id
func (h *ConnectionHandler) Delete(c *gin.Context) {
	if err := h.connections.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		respondError(c, err, "delete connection")
		return
	}
	c.Status(http.StatusNoContent)
}
