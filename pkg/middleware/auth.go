package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"whatsapp-panel-server/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Context keys set by AuthMiddleware
const (
	ContextUserID = "userID"
	ContextEmail  = "email"
	ContextRole   = "role"
)

// RoleAdmin is the app_metadata role that unlocks operator endpoints
const RoleAdmin = "admin"

// AppMetadata is the server-controlled part of a Supabase token
type AppMetadata struct {
	Provider string `json:"provider,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Claims represents the claims of a Supabase Auth access token
type Claims struct {
	Email       string      `json:"email,omitempty"`
	Role        string      `json:"role,omitempty"`
	AppMetadata AppMetadata `json:"app_metadata"`
	jwt.RegisteredClaims
}

// AuthMiddleware verifies a Supabase HS256 access token taken from the
// Authorization header or, for websocket handshakes, the access_token query
func AuthMiddleware(secret string) gin.HandlerFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)

	return func(c *gin.Context) {
		tokenString, ok := tokenFromRequest(c)
		if !ok {
			abortUnauthorized(c, "Authorization header is required")
			return
		}

		claims := &Claims{}
		_, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				abortUnauthorized(c, "Token has expired")
				return
			}
			logger.Warn("Rejected access token",
				zap.String("client_ip", c.ClientIP()),
				zap.String("event_type", "auth_failed"),
				zap.Error(err),
			)
			abortUnauthorized(c, "Invalid token")
			return
		}

		if claims.Subject == "" {
			abortUnauthorized(c, "Invalid token")
			return
		}

		c.Set(ContextUserID, claims.Subject)
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextRole, claims.AppMetadata.Role)
		c.Next()
	}
}

func tokenFromRequest(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		token, found := strings.CutPrefix(header, "Bearer ")
		return strings.TrimSpace(token), found && strings.TrimSpace(token) != ""
	}
	if token := c.Query("access_token"); token != "" {
		return token, true
	}
	return "", false
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

// RequireRole rejects callers whose app_metadata role differs from role
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if Role(c) != role {
			logger.Warn("Role check failed",
				zap.String("user_id", UserID(c)),
				zap.String("required_role", role),
				zap.String("event_type", "access_denied"),
			)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user id, or ""
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// Email returns the authenticated user's email, or ""
func Email(c *gin.Context) string {
	return c.GetString(ContextEmail)
}

// Role returns the authenticated user's app role, or ""
func Role(c *gin.Context) string {
	return c.GetString(ContextRole)
}

// GenerateToken signs a Supabase-shaped access token. The server never
// issues tokens itself; this is used by tests and local tooling.
func GenerateToken(secret, userID, email, role string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("user ID is required")
	}
	if secret == "" {
		return "", errors.New("JWT secret is required")
	}

	now := time.Now()
	claims := &Claims{
		Email:       email,
		Role:        "authenticated",
		AppMetadata: AppMetadata{Provider: "email", Role: role},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}
