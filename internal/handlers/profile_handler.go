package handlers

import (
	"net/http"

	"whatsapp-panel-server/internal/models"
	"whatsapp-panel-server/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// ProfileHandler serves the current user's profile
type ProfileHandler struct {
	profiles ProfileServiceInterface
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(profiles ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// Me handles GET /api/me
func (h *ProfileHandler) Me(c *gin.Context) {
	profile, err := h.profiles.Get(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err, "load profile")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"profile": profile,
		"role":    middleware.Role(c),
	})
}

// UpdateMe handles PUT /api/me
func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	var req models.UpdateProfileRequest
	if !bindJSON(c, &req) {
		return
	}
	profile, err := h.profiles.UpdateName(c.Request.Context(), middleware.UserID(c), req.FullName)
	if err != nil {
		respondError(c, err, "update profile")
		return
	}
	c.JSON(http.StatusOK, profile)
}
