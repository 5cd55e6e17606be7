package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"whatsapp-panel-server/internal/models"

	"github.com/google/uuid"
)

// AutomationRepository defines the interface for automation data access
type AutomationRepository interface {
	Create(ctx context.Context, a *models.Automation) error
	GetByID(ctx context.Context, userID, id string) (*models.Automation, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Automation, error)
	ListActive(ctx context.Context, userID string) ([]*models.Automation, error)
	Update(ctx context.Context, a *models.Automation) error
	Delete(ctx context.Context, userID, id string) error
	IncrementTriggerCount(ctx context.Context, id string) error
}

type automationRepository struct {
	db *Database
}

// NewAutomationRepository creates a new AutomationRepository
func NewAutomationRepository(db *Database) AutomationRepository {
	return &automationRepository{db: db}
}

const automationColumns = `id, user_id, connection_id, name, trigger_type, keywords, match_type,
	response_type, response_text, is_active, trigger_count, created_at, updated_at`

func scanAutomation(row interface{ Scan(...interface{}) error }) (*models.Automation, error) {
	a := &models.Automation{}
	var connectionID sql.NullString
	var keywords string
	err := row.Scan(&a.ID, &a.UserID, &connectionID, &a.Name, &a.TriggerType, &keywords, &a.MatchType,
		&a.ResponseType, &a.ResponseText, &a.IsActive, &a.TriggerCount, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.ConnectionID = stringPtr(connectionID)
	if err := json.Unmarshal([]byte(keywords), &a.Keywords); err != nil {
		return nil, fmt.Errorf("failed to decode keywords: %w", err)
	}
	if a.Keywords == nil {
		a.Keywords = []string{}
	}
	return a, nil
}

func encodeKeywords(keywords []string) (string, error) {
	if keywords == nil {
		keywords = []string{}
	}
	b, err := json.Marshal(keywords)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Create stores a new automation
func (r *automationRepository) Create(ctx context.Context, a *models.Automation) error {
	if a == nil {
		return fmt.Errorf("automation cannot be nil")
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	ts := now()
	a.CreatedAt = ts
	a.UpdatedAt = ts

	keywords, err := encodeKeywords(a.Keywords)
	if err != nil {
		return err
	}

	_, err = r.db.exec(ctx, `
		INSERT INTO automations (`+automationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.UserID, nullString(a.ConnectionID), a.Name, a.TriggerType, keywords, a.MatchType,
		a.ResponseType, a.ResponseText, a.IsActive, a.TriggerCount, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create automation: %w", err)
	}
	return nil
}

// GetByID retrieves an automation owned by userID
func (r *automationRepository) GetByID(ctx context.Context, userID, id string) (*models.Automation, error) {
	a, err := scanAutomation(r.db.queryRow(ctx,
		"SELECT "+automationColumns+" FROM automations WHERE id = ? AND user_id = ?", id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get automation: %w", err)
	}
	return a, nil
}

// ListByUser lists every automation of a user in creation order
func (r *automationRepository) ListByUser(ctx context.Context, userID string) ([]*models.Automation, error) {
	return r.list(ctx, "SELECT "+automationColumns+" FROM automations WHERE user_id = ? ORDER BY created_at, id", userID)
}

// ListActive lists the active automations of a user in creation order,
// which is the order rules are evaluated in
func (r *automationRepository) ListActive(ctx context.Context, userID string) ([]*models.Automation, error) {
	return r.list(ctx, "SELECT "+automationColumns+" FROM automations WHERE user_id = ? AND is_active = ? ORDER BY created_at, id", userID, true)
}

func (r *automationRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Automation, error) {
	rows, err := r.db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list automations: %w", err)
	}
	defer rows.Close()

	automations := []*models.Automation{}
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation: %w", err)
		}
		automations = append(automations, a)
	}
	return automations, rows.Err()
}

// Update overwrites the editable fields of an automation
func (r *automationRepository) Update(ctx context.Context, a *models.Automation) error {
	if a == nil {
		return fmt.Errorf("automation cannot be nil")
	}
	keywords, err := encodeKeywords(a.Keywords)
	if err != nil {
		return err
	}
	a.UpdatedAt = now()

	return expectOne(r.db.exec(ctx, `
		UPDATE automations
		SET connection_id = ?, name = ?, trigger_type = ?, keywords = ?, match_type = ?,
			response_type = ?, response_text = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, nullString(a.ConnectionID), a.Name, a.TriggerType, keywords, a.MatchType,
		a.ResponseType, a.ResponseText, a.IsActive, a.UpdatedAt, a.ID, a.UserID))
}

// Delete removes an automation owned by userID
func (r *automationRepository) Delete(ctx context.Context, userID, id string) error {
	return expectOne(r.db.exec(ctx, "DELETE FROM automations WHERE id = ? AND user_id = ?", id, userID))
}

// IncrementTriggerCount bumps the counter after an automation replied
func (r *automationRepository) IncrementTriggerCount(ctx context.Context, id string) error {
	return expectOne(r.db.exec(ctx,
		"UPDATE automations SET trigger_count = trigger_count + 1, updated_at = ? WHERE id = ?", now(), id))
}
