package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"whatsapp-panel-server/internal/services"
	"whatsapp-panel-server/pkg/evolution"
	"whatsapp-panel-server/pkg/logger"
	"whatsapp-panel-server/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxPageSize caps ?limit on list endpoints
const maxPageSize = 200

// respondError maps a service error to an HTTP response. Unexpected errors
// are attached to the context for ErrorLogMiddleware and hidden from the client.
func respondError(c *gin.Context, err error, action string) {
	var apiErr *evolution.APIError

	switch {
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, services.ErrConnectionNotReady),
		errors.Is(err, services.ErrNotPending),
		errors.Is(err, services.ErrDispatchInProgress),
		errors.Is(err, services.ErrTwoFactorAlreadyEnabled):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrInvalidTOTP):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid two-factor code"})
	case errors.Is(err, services.ErrTwoFactorNotSetup):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrAINotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrEmptyCompletion):
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "The assistant returned no answer"})
	case errors.As(err, &apiErr), errors.Is(err, evolution.ErrNotConfigured):
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "WhatsApp gateway request failed"})
	default:
		_ = c.Error(err)
		logger.Error("Failed to "+action,
			zap.String("user_id", middleware.UserID(c)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + action})
	}
}

// pagination reads ?limit and ?offset. Zero values let the repository
// apply its defaults.
func pagination(c *gin.Context) (int, int, bool) {
	limit, offset := 0, 0
	if s := c.Query("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit value"})
			return 0, 0, false
		}
		if l > maxPageSize {
			l = maxPageSize
		}
		limit = l
	}
	if s := c.Query("offset"); s != "" {
		o, err := strconv.Atoi(s)
		if err != nil || o < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset value"})
			return 0, 0, false
		}
		offset = o
	}
	return limit, offset, true
}

// bindJSON decodes the body or writes a 400
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		logger.Warn("Invalid request body",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return false
	}
	return true
}
