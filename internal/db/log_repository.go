package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"whatsapp-panel-server/internal/models"

	"github.com/google/uuid"
)

// LogRepository defines the interface for system and activity log storage
type LogRepository interface {
	AddSystemLog(ctx context.Context, entry *models.SystemLog) error
	ListSystemLogs(ctx context.Context, level string, limit, offset int) ([]*models.SystemLog, error)
	AddActivity(ctx context.Context, entry *models.ActivityLog) error
	ListActivity(ctx context.Context, userID string, limit, offset int) ([]*models.ActivityLog, error)
}

type logRepository struct {
	db *Database
}

// NewLogRepository creates a new LogRepository
func NewLogRepository(db *Database) LogRepository {
	return &logRepository{db: db}
}

func encodeDetails(details map[string]interface{}) (string, error) {
	if len(details) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("failed to encode log details: %w", err)
	}
	return string(b), nil
}

func decodeDetails(raw string) map[string]interface{} {
	var details map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &details); err != nil || len(details) == 0 {
		return nil
	}
	return details
}

func (r *logRepository) AddSystemLog(ctx context.Context, entry *models.SystemLog) error {
	if entry == nil {
		return fmt.Errorf("log entry cannot be nil")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = now()

	details, err := encodeDetails(entry.Details)
	if err != nil {
		return err
	}

	_, err = r.db.exec(ctx, `
		INSERT INTO system_logs (id, level, source, message, user_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.Level, entry.Source, entry.Message, nullString(entry.UserID), details, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add system log: %w", err)
	}
	return nil
}

func (r *logRepository) ListSystemLogs(ctx context.Context, level string, limit, offset int) ([]*models.SystemLog, error) {
	limit, offset = clampPage(limit, offset, 100, 500)

	query := "SELECT id, level, source, message, user_id, details, created_at FROM system_logs"
	var args []interface{}
	if level != "" {
		query += " WHERE level = ?"
		args = append(args, level)
	}
	query += " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list system logs: %w", err)
	}
	defer rows.Close()

	logs := []*models.SystemLog{}
	for rows.Next() {
		entry := &models.SystemLog{}
		var userID sql.NullString
		var details string
		if err := rows.Scan(&entry.ID, &entry.Level, &entry.Source, &entry.Message, &userID, &details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan system log: %w", err)
		}
		entry.UserID = stringPtr(userID)
		entry.Details = decodeDetails(details)
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (r *logRepository) AddActivity(ctx context.Context, entry *models.ActivityLog) error {
	if entry == nil {
		return fmt.Errorf("log entry cannot be nil")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = now()

	details, err := encodeDetails(entry.Details)
	if err != nil {
		return err
	}

	_, err = r.db.exec(ctx, `
		INSERT INTO activity_logs (id, user_id, action, entity_type, entity_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.UserID, entry.Action, entry.EntityType, entry.EntityID, details, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add activity log: %w", err)
	}
	return nil
}

func (r *logRepository) ListActivity(ctx context.Context, userID string, limit, offset int) ([]*models.ActivityLog, error) {
	limit, offset = clampPage(limit, offset, 100, 500)

	rows, err := r.db.query(ctx, `
		SELECT id, user_id, action, entity_type, entity_id, details, created_at
		FROM activity_logs WHERE user_id = ?
		ORDER BY created_at DESC, id LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity logs: %w", err)
	}
	defer rows.Close()

	logs := []*models.ActivityLog{}
	for rows.Next() {
		entry := &models.ActivityLog{}
		var details string
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Action, &entry.EntityType, &entry.EntityID, &details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity log: %w", err)
		}
		entry.Details = decodeDetails(details)
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
