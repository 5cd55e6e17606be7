package handlers

import (
	"net/http"

	"whatsapp-panel-server/internal/models"
	"whatsapp-panel-server/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// AutomationHandler handles auto-reply rule requests
type AutomationHandler struct {
	automations AutomationServiceInterface
}

// NewAutomationHandler creates a new automation handler
func NewAutomationHandler(automations AutomationServiceInterface) *AutomationHandler {
	return &AutomationHandler{automations: automations}
}

// List handles GET /api/automations
func (h *AutomationHandler) List(c *gin.Context) {
	list, err := h.automations.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err, "list automations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"automations": list})
}

// Get handles GET /api/automations/:id
func (h *AutomationHandler) Get(c *gin.Context) {
	a, err := h.automations.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "load automation")
		return
	}
	c.JSON(http.StatusOK, a)
}

// Create handles POST /api/automations
func (h *AutomationHandler) Create(c *gin.Context) {
	var req models.AutomationRequest
	if !bindJSON(c, &req) {
		return
	}
	a, err := h.automations.Create(c.Request.Context(), middleware.UserID(c), &req)
	if err != nil {
		respondError(c, err, "create automation")
		return
	}
	c.JSON(http.StatusCreated, a)
}

// Update handles PUT /api/automations/:id
func (h *AutomationHandler) Update(c *gin.Context) {
	var req models.AutomationRequest
	if !bindJSON(c, &req) {
		return
	}
	a, err := h.automations.Update(c.Request.Context(), middleware.UserID(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err, "update automation")
		return
	}
	c.JSON(http.StatusOK, a)
}

// Delete handles DELETE /api/automations/:id
func (h *AutomationHandler) Delete(c *gin.Context) {
	if err := h.automations.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		respondError(c, err, "delete automation")
		return
	}
	c.Status(http.StatusNoContent)
}
