package services

import (
	"context"
	"fmt"

	"whatsapp-panel-server/internal/db"
	"whatsapp-panel-server/internal/models"
	"whatsapp-panel-server/pkg/logger"

	"go.uber.org/zap"
)

// LogService records system events and user activity.
// Recording never fails the caller: storage errors are only logged.
type LogService struct {
	repo db.LogRepository
}

// NewLogService creates a new LogService
func NewLogService(repo db.LogRepository) *LogService {
	return &LogService{repo: repo}
}

// System stores an operational event and mirrors it to the process log
func (s *LogService) System(ctx context.Context, level, source, message, userID string, details map[string]interface{}) {
	fields := []zap.Field{zap.String("source", source), zap.String("event_type", "system_log")}
	if userID != "" {
		fields = append(fields, zap.String("user_id", userID))
	}
	for k, v := range details {
		fields = append(fields, zap.Any(k, v))
	}
	switch level {
	case models.LevelError:
		logger.Error(message, fields...)
	case models.LevelWarn:
		logger.Warn(message, fields...)
	default:
		logger.Info(message, fields...)
	}

	entry := &models.SystemLog{
		Level:   level,
		Source:  source,
		Message: message,
		Details: details,
	}
	if userID != "" {
		entry.UserID = &userID
	}
	if err := s.repo.AddSystemLog(ctx, entry); err != nil {
		logger.Error("Failed to store system log",
			zap.String("source", source),
			zap.Error(err),
		)
	}
}

// Activity records something that happened to a user's resources
func (s *LogService) Activity(ctx context.Context, userID, action, entityType, entityID string, details map[string]interface{}) {
	err := s.repo.AddActivity(ctx, &models.ActivityLog{
		UserID:     userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
	})
	if err != nil {
		logger.Error("Failed to store activity log",
			zap.String("user_id", userID),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

// ListSystem returns system logs, optionally filtered by level
func (s *LogService) ListSystem(ctx context.Context, level string, limit, offset int) ([]*models.SystemLog, error) {
	switch level {
	case "", models.LevelInfo, models.LevelWarn, models.LevelError:
	default:
		return nil, fmt.Errorf("%w: unknown level %q", ErrValidation, level)
	}
	return s.repo.ListSystemLogs(ctx, level, limit, offset)
}

// ListActivity returns a user's activity, newest first
func (s *LogService) ListActivity(ctx context.Context, userID string, limit, offset int) ([]*models.ActivityLog, error) {
	return s.repo.ListActivity(ctx, userID, limit, offset)
}
