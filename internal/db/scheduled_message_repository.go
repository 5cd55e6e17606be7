package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"whatsapp-panel-server/internal/models"

	"github.com/google/uuid"
)

// ScheduledMessageRepository defines the interface for scheduled message data access
type ScheduledMessageRepository interface {
	Create(ctx context.Context, m *models.ScheduledMessage) error
	GetByID(ctx context.Context, userID, id string) (*models.ScheduledMessage, error)
	ListByUser(ctx context.Context, userID, status string, limit, offset int) ([]*models.ScheduledMessage, error)
	Update(ctx context.Context, m *models.ScheduledMessage) error
	Delete(ctx context.Context, userID, id string) error
	Cancel(ctx context.Context, userID, id string) error

	ListDue(ctx context.Context, at time.Time, limit int) ([]*models.ScheduledMessage, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	Rearm(ctx context.Context, id string, next, sentAt time.Time) error
	ScheduleRetry(ctx context.Context, id string, retryCount int, next time.Time, lastError string) error
	MarkFailed(ctx context.Context, id string, retryCount int, lastError string) error
}

type scheduledMessageRepository struct {
	db *Database
}

// NewScheduledMessageRepository creates a new ScheduledMessageRepository
func NewScheduledMessageRepository(db *Database) ScheduledMessageRepository {
	return &scheduledMessageRepository{db: db}
}

const scheduledColumns = `id, user_id, connection_id, phone_number, message, scheduled_for, recurrence,
	status, retry_count, last_error, next_attempt_at, sent_at, created_at, updated_at`

func scanScheduled(row interface{ Scan(...interface{}) error }) (*models.ScheduledMessage, error) {
	m := &models.ScheduledMessage{}
	var nextAttempt, sentAt sql.NullTime
	err := row.Scan(&m.ID, &m.UserID, &m.ConnectionID, &m.PhoneNumber, &m.Message, &m.ScheduledFor, &m.Recurrence,
		&m.Status, &m.RetryCount, &m.LastError, &nextAttempt, &sentAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.ScheduledFor = m.ScheduledFor.UTC()
	m.NextAttemptAt = timePtr(nextAttempt)
	m.SentAt = timePtr(sentAt)
	return m, nil
}

// Create stores a new scheduled message
func (r *scheduledMessageRepository) Create(ctx context.Context, m *models.ScheduledMessage) error {
	if m == nil {
		return fmt.Errorf("scheduled message cannot be nil")
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Status == "" {
		m.Status = models.ScheduledPending
	}
	if m.Recurrence == "" {
		m.Recurrence = models.RecurrenceNone
	}
	ts := now()
	m.CreatedAt = ts
	m.UpdatedAt = ts
	m.ScheduledFor = m.ScheduledFor.UTC()

	_, err := r.db.exec(ctx, `
		INSERT INTO scheduled_messages (`+scheduledColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.UserID, m.ConnectionID, m.PhoneNumber, m.Message, m.ScheduledFor, m.Recurrence,
		m.Status, m.RetryCount, m.LastError, nullTime(m.NextAttemptAt), nullTime(m.SentAt), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create scheduled message: %w", err)
	}
	return nil
}

// GetByID retrieves a scheduled message owned by userID
func (r *scheduledMessageRepository) GetByID(ctx context.Context, userID, id string) (*models.ScheduledMessage, error) {
	m, err := scanScheduled(r.db.queryRow(ctx,
		"SELECT "+scheduledColumns+" FROM scheduled_messages WHERE id = ? AND user_id = ?", id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scheduled message: %w", err)
	}
	return m, nil
}

// ListByUser lists scheduled messages by delivery time; an empty status lists all
func (r *scheduledMessageRepository) ListByUser(ctx context.Context, userID, status string, limit, offset int) ([]*models.ScheduledMessage, error) {
	limit, offset = clampPage(limit, offset, 50, 200)

	query := "SELECT " + scheduledColumns + " FROM scheduled_messages WHERE user_id = ?"
	args := []interface{}{userID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY scheduled_for, id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	return r.list(ctx, query, args...)
}

func (r *scheduledMessageRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.ScheduledMessage, error) {
	rows, err := r.db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled messages: %w", err)
	}
	defer rows.Close()

	messages := []*models.ScheduledMessage{}
	for rows.Next() {
		m, err := scanScheduled(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Update overwrites the editable fields of a pending scheduled message
func (r *scheduledMessageRepository) Update(ctx context.Context, m *models.ScheduledMessage) error {
	if m == nil {
		return fmt.Errorf("scheduled message cannot be nil")
	}
	m.UpdatedAt = now()
	m.ScheduledFor = m.ScheduledFor.UTC()

	return expectOne(r.db.exec(ctx, `
		UPDATE scheduled_messages
		SET connection_id = ?, phone_number = ?, message = ?, scheduled_for = ?, recurrence = ?,
			retry_count = ?, last_error = ?, next_attempt_at = NULL, updated_at = ?
		WHERE id = ? AND user_id = ? AND status = ?
	`, m.ConnectionID, m.PhoneNumber, m.Message, m.ScheduledFor, m.Recurrence,
		m.RetryCount, m.LastError, m.UpdatedAt, m.ID, m.UserID, models.ScheduledPending))
}

// Delete removes a scheduled message owned by userID
func (r *scheduledMessageRepository) Delete(ctx context.Context, userID, id string) error {
	return expectOne(r.db.exec(ctx, "DELETE FROM scheduled_messages WHERE id = ? AND user_id = ?", id, userID))
}

// Cancel stops a pending scheduled message
func (r *scheduledMessageRepository) Cancel(ctx context.Context, userID, id string) error {
	return expectOne(r.db.exec(ctx, `
		UPDATE scheduled_messages SET status = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND status = ?
	`, models.ScheduledCancelled, now(), id, userID, models.ScheduledPending))
}

// ListDue returns pending messages whose time has come, oldest first. A
// message waiting for a retry is due at next_attempt_at instead of its
// occurrence time.
func (r *scheduledMessageRepository) ListDue(ctx context.Context, at time.Time, limit int) ([]*models.ScheduledMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, `
		SELECT `+scheduledColumns+` FROM scheduled_messages
		WHERE status = ? AND COALESCE(next_attempt_at, scheduled_for) <= ?
		ORDER BY COALESCE(next_attempt_at, scheduled_for), id
		LIMIT ?
	`, models.ScheduledPending, at.UTC(), limit)
}

// MarkSent finishes a one-off message
func (r *scheduledMessageRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	return expectOne(r.db.exec(ctx, `
		UPDATE scheduled_messages
		SET status = ?, sent_at = ?, last_error = '', next_attempt_at = NULL, updated_at = ?
		WHERE id = ?
	`, models.ScheduledSent, sentAt.UTC(), now(), id))
}

// Rearm moves a delivered recurring message to its next occurrence
func (r *scheduledMessageRepository) Rearm(ctx context.Context, id string, next, sentAt time.Time) error {
	return expectOne(r.db.exec(ctx, `
		UPDATE scheduled_messages
		SET scheduled_for = ?, sent_at = ?, retry_count = 0, last_error = '', next_attempt_at = NULL,
			status = ?, updated_at = ?
		WHERE id = ?
	`, next.UTC(), sentAt.UTC(), models.ScheduledPending, now(), id))
}

// ScheduleRetry records a failed attempt and sets when to try again;
// scheduled_for keeps the occurrence time
func (r *scheduledMessageRepository) ScheduleRetry(ctx context.Context, id string, retryCount int, next time.Time, lastError string) error {
	return expectOne(r.db.exec(ctx, `
		UPDATE scheduled_messages
		SET retry_count = ?, next_attempt_at = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, retryCount, next.UTC(), lastError, now(), id))
}

// MarkFailed gives up on a message after its last attempt
func (r *scheduledMessageRepository) MarkFailed(ctx context.Context, id string, retryCount int, lastError string) error {
	return expectOne(r.db.exec(ctx, `
		UPDATE scheduled_messages
		SET status = ?, retry_count = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, models.ScheduledFailed, retryCount, lastError, now(), id))
}
