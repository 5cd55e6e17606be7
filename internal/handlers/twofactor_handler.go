package handlers

import (
	"net/http"

	"whatsapp-panel-server/internal/models"
	"whatsapp-panel-server/pkg/logger"
	"whatsapp-panel-server/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TwoFactorHandler handles TOTP enrolment and verification
type TwoFactorHandler struct {
	twoFactor TwoFactorServiceInterface
}

// NewTwoFactorHandler creates a new two-factor handler
func NewTwoFactorHandler(twoFactor TwoFactorServiceInterface) *TwoFactorHandler {
	return &TwoFactorHandler{twoFactor: twoFactor}
}

// Setup handles POST /api/2fa/setup.
// Returns a fresh secret and otpauth URL; 2FA stays off until Enable.
func (h *TwoFactorHandler) Setup(c *gin.Context) {
	setup, err := h.twoFactor.Setup(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err, "start two-factor setup")
		return
	}
	c.JSON(http.StatusOK, setup)
}

// Enable handles POST /api/2fa/enable.
// The recovery codes in the response are shown once and never again.
func (h *TwoFactorHandler) Enable(c *gin.Context) {
	var req models.TwoFactorCodeRequest
	if !bindJSON(c, &req) {
		return
	}

	userID := middleware.UserID(c)
	codes, err := h.twoFactor.Enable(c.Request.Context(), userID, req.Code)
	if err != nil {
		respondError(c, err, "enable two-factor authentication")
		return
	}

	logger.Info("Two-factor authentication enabled",
		zap.String("user_id", userID),
		zap.String("event_type", "2fa_enabled"),
	)
	c.JSON(http.StatusOK, gin.H{
		"enabled":        true,
		"recovery_codes": codes,
	})
}

// Verify handles POST /api/2fa/verify
func (h *TwoFactorHandler) Verify(c *gin.Context) {
	var req models.TwoFactorCodeRequest
	if !bindJSON(c, &req) {
		return
	}

	userID := middleware.UserID(c)
	if err := h.twoFactor.Verify(c.Request.Context(), userID, req.Code); err != nil {
		logger.Warn("Two-factor verification failed",
			zap.String("user_id", userID),
			zap.String("client_ip", c.ClientIP()),
			zap.String("event_type", "2fa_failed"),
		)
		respondError(c, err, "verify two-factor code")
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": true})
}

// Disable handles POST /api/2fa/disable; a valid code is required
func (h *TwoFactorHandler) Disable(c *gin.Context) {
	var req models.TwoFactorCodeRequest
	if !bindJSON(c, &req) {
		return
	}

	userID := middleware.UserID(c)
	if err := h.twoFactor.Disable(c.Request.Context(), userID, req.Code); err != nil {
		respondError(c, err, "disable two-factor authentication")
		return
	}

	logger.Info("Two-factor authentication disabled",
		zap.String("user_id", userID),
		zap.String("event_type", "2fa_disabled"),
	)
	c.JSON(http.StatusOK, gin.H{"enabled": false})
}

// Status handles GET /api/2fa/status
func (h *TwoFactorHandler) Status(c *gin.Context) {
	status, err := h.twoFactor.Status(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err, "load two-factor status")
		return
	}
	c.JSON(http.StatusOK, status)
}
