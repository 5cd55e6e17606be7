package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"whatsapp-panel-server/internal/config"
	"whatsapp-panel-server/internal/db"
	"whatsapp-panel-server/internal/handlers"
	"whatsapp-panel-server/internal/metrics"
	"whatsapp-panel-server/internal/realtime"
	"whatsapp-panel-server/internal/services"
	"whatsapp-panel-server/pkg/evolution"
	"whatsapp-panel-server/pkg/gemini"
	"whatsapp-panel-server/pkg/logger"
	"whatsapp-panel-server/pkg/mailer"
	"whatsapp-panel-server/pkg/utils"
	"whatsapp-panel-server/router"

	"go.uber.org/zap"
)

// Server is the HTTP server plus the background work it owns
type Server struct {
	*http.Server

	cfg       *config.Config
	database  *db.Database
	scheduler *services.SchedulerService
	gemini    *gemini.Client
}

// SetupServer initializes the database, services and routes
func SetupServer(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}

	if cfg.Server.Port <= 0 {
		return nil, errors.New("invalid server port")
	}

	// Initialize database
	database, err := db.NewDatabase(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	box, err := utils.NewSecretBox(cfg.Security.TOTPEncryptionKey)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("invalid TOTP encryption key: %w", err)
	}
	if !box.Enabled() {
		logger.Warn("TOTP secrets are stored unencrypted; set TOTP_ENCRYPTION_KEY")
	}

	// External clients
	gateway := evolution.NewClient(cfg.Evolution.BaseURL, cfg.Evolution.APIKey, cfg.Evolution.Timeout.Std(),
		evolution.WithRateLimit(cfg.Evolution.RatePerSecond),
		evolution.WithObserver(metrics.ObserveGateway),
	)

	var completer services.Completer
	geminiClient, err := gemini.New(context.Background(), cfg.Gemini.APIKey, cfg.Gemini.Model)
	switch {
	case errors.Is(err, gemini.ErrNotConfigured):
		logger.Warn("GEMINI_API_KEY not set; the AI assistant is disabled")
	case err != nil:
		database.Close()
		return nil, err
	default:
		completer = geminiClient
	}

	notifier := mailer.New(cfg.Resend.APIKey, cfg.Resend.From)
	if !notifier.Enabled() {
		logger.Warn("RESEND_API_KEY not set; failure emails are disabled")
	}

	hub := realtime.NewHub()

	// Initialize repositories
	profileRepo := db.NewProfileRepository(database)
	connectionRepo := db.NewConnectionRepository(database)
	conversationRepo := db.NewConversationRepository(database)

	// Initialize services
	logService := services.NewLogService(db.NewLogRepository(database))
	profileService := services.NewProfileService(profileRepo)
	twoFactorService := services.NewTwoFactorService(db.NewTwoFactorRepository(database), profileRepo, box, cfg.Security.TOTPIssuer)
	outbound := services.NewOutboundRecorder(conversationRepo, hub)
	aiService := services.NewAIService(db.NewAIChatRepository(database), completer, logService)
	automationService := services.NewAutomationService(db.NewAutomationRepository(database), connectionRepo, outbound, gateway, aiService, logService)
	connectionService := services.NewConnectionService(connectionRepo, gateway, hub, logService, webhookURL(cfg))
	conversationService := services.NewConversationService(conversationRepo, connectionRepo, outbound, gateway, logService)
	webhookService := services.NewWebhookService(connectionRepo, conversationRepo, automationService, hub, logService)
	schedulerService := services.NewSchedulerService(
		db.NewScheduledMessageRepository(database),
		connectionRepo,
		profileService,
		outbound,
		gateway,
		notifier,
		hub,
		logService,
		services.SchedulerConfig{
			Interval:    cfg.Scheduler.Interval.Std(),
			BatchSize:   cfg.Scheduler.BatchSize,
			MaxAttempts: cfg.Scheduler.MaxAttempts,
			RetryDelay:  cfg.Scheduler.RetryDelay.Std(),
		},
	)

	r := router.New(router.Options{
		JWTSecret:      cfg.JWT.Secret,
		CronSecret:     cfg.Security.CronSecret,
		WebhookSecret:  cfg.Security.WebhookSecret,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ForceHTTPS:     cfg.Server.ForceHTTPS,
		Version:        version,
		Database:       database,
		Profiles:       profileService,
		Logs:           logService,
	}, router.Handlers{
		Profile:      handlers.NewProfileHandler(profileService),
		TwoFactor:    handlers.NewTwoFactorHandler(twoFactorService),
		Connection:   handlers.NewConnectionHandler(connectionService),
		Conversation: handlers.NewConversationHandler(conversationService),
		Automation:   handlers.NewAutomationHandler(automationService),
		Scheduled:    handlers.NewScheduledHandler(schedulerService, schedulerService),
		AI:           handlers.NewAIHandler(aiService),
		Log:          handlers.NewLogHandler(logService),
		Webhook:      handlers.NewWebhookHandler(webhookService),
		Realtime:     handlers.NewRealtimeHandler(hub, cfg.Server.AllowedOrigins),
	})

	// Create server with security timeouts. WriteTimeout stays off so
	// websocket streams are not cut.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		Server:    srv,
		cfg:       cfg,
		database:  database,
		scheduler: schedulerService,
		gemini:    geminiClient,
	}, nil
}

// webhookURL is the address gateway instances post events to
func webhookURL(cfg *config.Config) string {
	u := strings.TrimRight(cfg.Server.PublicURL, "/") + "/webhooks/evolution"
	if cfg.Security.WebhookSecret != "" {
		u += "?token=" + url.QueryEscape(cfg.Security.WebhookSecret)
	}
	return u
}

// StartServer starts the HTTP server and handles graceful shutdown
func StartServer(srv *Server) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return StartServerWithContext(ctx, srv)
}

// StartServerWithContext runs the server and the scheduler until ctx is done
func StartServerWithContext(ctx context.Context, srv *Server) error {
	var wg sync.WaitGroup
	bgCtx, cancelBg := context.WithCancel(context.Background())

	if srv.cfg.Scheduler.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			srv.scheduler.Run(bgCtx)
		}()
	} else {
		logger.Info("In-process scheduler disabled; relying on the cron endpoint")
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("Shutting down server...")

	// Create a timeout context for shutdown
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil && runErr == nil {
		runErr = fmt.Errorf("server shutdown failed: %w", err)
	}

	cancelBg()
	wg.Wait()
	srv.closeResources()

	return runErr
}

func (s *Server) closeResources() {
	if s.gemini != nil {
		if err := s.gemini.Close(); err != nil {
			logger.Warn("Failed to close gemini client", zap.Error(err))
		}
	}
	if err := s.database.Close(); err != nil {
		logger.Warn("Failed to close database", zap.Error(err))
	}
}
