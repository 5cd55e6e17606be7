package middleware

import (
	"context"
	"net/http"

	"whatsapp-panel-server/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ProfileEnsurer creates the local profile of an authenticated user
type ProfileEnsurer interface {
	Ensure(ctx context.Context, userID, email string) error
}

// ProfileMiddleware makes sure every authenticated caller has a profile row
// before any handler writes user-owned data. It must run after AuthMiddleware.
func ProfileMiddleware(profiles ProfileEnsurer) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := UserID(c)
		if userID == "" {
			c.Next()
			return
		}
		if err := profiles.Ensure(c.Request.Context(), userID, Email(c)); err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load profile"})
			return
		}
		c.Next()
	}
}

// SystemLogger persists operational errors
type SystemLogger interface {
	System(ctx context.Context, level, source, message, userID string, details map[string]interface{})
}

// ErrorLogMiddleware stores every error a handler attached with c.Error
func ErrorLogMiddleware(logs SystemLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		source := c.FullPath()
		if source == "" {
			source = c.Request.URL.Path
		}
		for _, e := range c.Errors {
			logs.System(c.Request.Context(), "error", c.Request.Method+" "+source, e.Error(), UserID(c), map[string]interface{}{
				"request_id": c.GetString(ContextRequestID),
				"status":     c.Writer.Status(),
			})
		}
		logger.Debug("Request errors recorded",
			zap.String("path", source),
			zap.Int("count", len(c.Errors)),
		)
	}
}
