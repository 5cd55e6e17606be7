package router

import (
	"context"
	"net/http"
	"time"

	"whatsapp-panel-server/internal/handlers"
	"whatsapp-panel-server/internal/metrics"
	"whatsapp-panel-server/pkg/logger"
	"whatsapp-panel-server/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DefaultMaxBodyBytes bounds request bodies when Options leaves it unset
const DefaultMaxBodyBytes = 1 << 20

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options holds the settings the engine is built with
type Options struct {
	JWTSecret      string
	CronSecret     string
	WebhookSecret  string
	AllowedOrigins []string
	ForceHTTPS     bool
	MaxBodyBytes   int64
	Version        string

	Database Pinger
	Profiles middleware.ProfileEnsurer
	Logs     middleware.SystemLogger
}

// Handlers bundles every HTTP handler the router mounts
type Handlers struct {
	Profile      *handlers.ProfileHandler
	TwoFactor    *handlers.TwoFactorHandler
	Connection   *handlers.ConnectionHandler
	Conversation *handlers.ConversationHandler
	Automation   *handlers.AutomationHandler
	Scheduled    *handlers.ScheduledHandler
	AI           *handlers.AIHandler
	Log          *handlers.LogHandler
	Webhook      *handlers.WebhookHandler
	Realtime     *handlers.RealtimeHandler
}

type Router struct {
	engine  *gin.Engine
	opts    Options
	started time.Time
}

func New(opts Options, h Handlers) *Router {
	if opts.Database == nil || opts.Profiles == nil || opts.Logs == nil {
		panic("router dependencies cannot be nil")
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	r := &Router{
		engine:  gin.New(),
		opts:    opts,
		started: time.Now(),
	}

	e := r.engine
	e.HandleMethodNotAllowed = true
	e.NoRoute(r.handleNotFound)
	e.NoMethod(r.handleMethodNotAllowed)

	e.Use(gin.Recovery())
	e.Use(middleware.RequestIDMiddleware())
	e.Use(middleware.SecurityHeadersMiddleware())
	if opts.ForceHTTPS {
		e.Use(middleware.HTTPSRedirectMiddleware())
	}
	e.Use(middleware.CORSMiddleware(opts.AllowedOrigins))
	e.Use(middleware.RequestSizeLimitMiddleware(opts.MaxBodyBytes))
	e.Use(metrics.Middleware())
	e.Use(middleware.AuditLogMiddleware())
	e.Use(middleware.ErrorLogMiddleware(opts.Logs))

	// Public endpoints
	e.GET("/health", r.handleHealth)
	e.GET("/metrics", metrics.Handler())
	e.POST("/webhooks/evolution",
		middleware.SharedSecretMiddleware(opts.WebhookSecret, middleware.QuerySecret("token")),
		h.Webhook.Evolution,
	)

	// External cron trigger, guarded by the shared secret instead of a user token
	e.POST("/api/cron/process-scheduled-messages",
		middleware.SharedSecretMiddleware(opts.CronSecret, middleware.HeaderSecret("X-Cron-Secret")),
		h.Scheduled.ProcessDue,
	)

	api := e.Group("/api")
	api.Use(middleware.AuthMiddleware(opts.JWTSecret))
	api.Use(middleware.ProfileMiddleware(opts.Profiles))
	{
		api.GET("/me", h.Profile.Me)
		api.PUT("/me", h.Profile.UpdateMe)

		twoFactor := api.Group("/2fa")
		twoFactor.POST("/setup", h.TwoFactor.Setup)
		twoFactor.POST("/enable", h.TwoFactor.Enable)
		twoFactor.POST("/verify", h.TwoFactor.Verify)
		twoFactor.POST("/disable", h.TwoFactor.Disable)
		twoFactor.GET("/status", h.TwoFactor.Status)

		connections := api.Group("/connections")
		connections.GET("", h.Connection.List)
		connections.POST("", h.Connection.Create)
		connections.GET("/:id", h.Connection.Get)
		connections.DELETE("/:id", h.Connection.Delete)
		connections.POST("/:id/connect", h.Connection.Connect)
		connections.POST("/:id/refresh", h.Connection.Refresh)
		connections.POST("/:id/logout", h.Connection.Logout)

		conversations := api.Group("/conversations")
		conversations.GET("", h.Conversation.List)
		conversations.DELETE("/:id", h.Conversation.Delete)
		conversations.GET("/:id/messages", h.Conversation.Messages)
		conversations.POST("/:id/messages", h.Conversation.Send)
		conversations.POST("/:id/read", h.Conversation.MarkRead)

		automations := api.Group("/automations")
		automations.GET("", h.Automation.List)
		automations.POST("", h.Automation.Create)
		automations.GET("/:id", h.Automation.Get)
		automations.PUT("/:id", h.Automation.Update)
		automations.DELETE("/:id", h.Automation.Delete)

		scheduled := api.Group("/scheduled-messages")
		scheduled.GET("", h.Scheduled.List)
		scheduled.POST("", h.Scheduled.Create)
		scheduled.GET("/:id", h.Scheduled.Get)
		scheduled.PUT("/:id", h.Scheduled.Update)
		scheduled.DELETE("/:id", h.Scheduled.Delete)
		scheduled.POST("/:id/cancel", h.Scheduled.Cancel)

		ai := api.Group("/ai/chats")
		ai.GET("", h.AI.ListChats)
		ai.POST("", h.AI.CreateChat)
		ai.DELETE("/:id", h.AI.DeleteChat)
		ai.GET("/:id/messages", h.AI.Messages)
		ai.POST("/:id/messages", h.AI.Send)

		api.GET("/logs/activity", h.Log.Activity)
		api.GET("/logs/system", middleware.RequireRole(middleware.RoleAdmin), h.Log.System)

		api.GET("/realtime", h.Realtime.Stream)
	}

	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.engine.ServeHTTP(w, req)
}

// Engine exposes the gin engine for tests and server wiring
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	database := "ok"
	if err := r.opts.Database.Ping(ctx); err != nil {
		logger.Warn("Health check database ping failed", zap.Error(err))
		status, code = "degraded", http.StatusServiceUnavailable
		database = "unreachable"
	}

	c.JSON(code, gin.H{
		"status":   status,
		"database": database,
		"time":     time.Now().UTC(),
		"uptime":   time.Since(r.started).Round(time.Second).String(),
		"version":  r.opts.Version,
		"service":  "whatsapp-panel-server",
	})
}

func (r *Router) handleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
}

func (r *Router) handleMethodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
}
