package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"whatsapp-panel-server/internal/models"
)

// ProfileRepository defines the interface for profile data access
type ProfileRepository interface {
	Upsert(ctx context.Context, id, email string) error
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	UpdateName(ctx context.Context, id, fullName string) error
}

type profileRepository struct {
	db *Database
}

// NewProfileRepository creates a new ProfileRepository
func NewProfileRepository(db *Database) ProfileRepository {
	return &profileRepository{db: db}
}

// Upsert creates the profile on first sight and keeps the email in sync afterwards
func (r *profileRepository) Upsert(ctx context.Context, id, email string) error {
	if id == "" {
		return fmt.Errorf("profile ID cannot be empty")
	}

	ts := now()
	_, err := r.db.exec(ctx, `
		INSERT INTO profiles (id, email, full_name, created_at, updated_at)
		VALUES (?, ?, '', ?, ?)
		ON CONFLICT (id) DO UPDATE SET email = excluded.email
	`, id, email, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// GetByID retrieves a profile by ID
func (r *profileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	if id == "" {
		return nil, fmt.Errorf("profile ID cannot be empty")
	}

	p := &models.Profile{}
	err := r.db.queryRow(ctx, `
		SELECT id, email, full_name, created_at, updated_at
		FROM profiles WHERE id = ?
	`, id).Scan(&p.ID, &p.Email, &p.FullName, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// UpdateName sets the display name
func (r *profileRepository) UpdateName(ctx context.Context, id, fullName string) error {
	err := expectOne(r.db.exec(ctx,
		"UPDATE profiles SET full_name = ?, updated_at = ? WHERE id = ?",
		fullName, now(), id,
	))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return err
}

// TwoFactorRepository defines the interface for TOTP enrolment storage
type TwoFactorRepository interface {
	Get(ctx context.Context, userID string) (*models.TwoFactor, error)
	Save(ctx context.Context, tf *models.TwoFactor) error
	Delete(ctx context.Context, userID string) error
}

type twoFactorRepository struct {
	db *Database
}

// NewTwoFactorRepository creates a new TwoFactorRepository
func NewTwoFactorRepository(db *Database) TwoFactorRepository {
	return &twoFactorRepository{db: db}
}

// Get returns the enrolment or ErrNotFound
func (r *twoFactorRepository) Get(ctx context.Context, userID string) (*models.TwoFactor, error) {
	tf := &models.TwoFactor{}
	var codes string
	var enabledAt sql.NullTime
	err := r.db.queryRow(ctx, `
		SELECT user_id, secret, enabled, recovery_codes, enabled_at, last_used_step, created_at, updated_at
		FROM two_factor WHERE user_id = ?
	`, userID).Scan(&tf.UserID, &tf.Secret, &tf.Enabled, &codes, &enabledAt, &tf.LastUsedStep, &tf.CreatedAt, &tf.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get two-factor enrolment: %w", err)
	}

	if err := json.Unmarshal([]byte(codes), &tf.RecoveryCodes); err != nil {
		return nil, fmt.Errorf("failed to decode recovery codes: %w", err)
	}
	tf.EnabledAt = timePtr(enabledAt)
	return tf, nil
}

// Save inserts or replaces the enrolment
func (r *twoFactorRepository) Save(ctx context.Context, tf *models.TwoFactor) error {
	if tf == nil || tf.UserID == "" {
		return fmt.Errorf("two-factor enrolment requires a user ID")
	}

	codes := tf.RecoveryCodes
	if codes == nil {
		codes = []string{}
	}
	encoded, err := json.Marshal(codes)
	if err != nil {
		return err
	}

	ts := now()
	if tf.CreatedAt.IsZero() {
		tf.CreatedAt = ts
	}
	tf.UpdatedAt = ts

	_, err = r.db.exec(ctx, `
		INSERT INTO two_factor (user_id, secret, enabled, recovery_codes, enabled_at, last_used_step, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			secret = excluded.secret,
			enabled = excluded.enabled,
			recovery_codes = excluded.recovery_codes,
			enabled_at = excluded.enabled_at,
			last_used_step = excluded.last_used_step,
			updated_at = excluded.updated_at
	`, tf.UserID, tf.Secret, tf.Enabled, string(encoded), nullTime(tf.EnabledAt), tf.LastUsedStep, tf.CreatedAt, tf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save two-factor enrolment: %w", err)
	}
	return nil
}

// Delete removes the enrolment
func (r *twoFactorRepository) Delete(ctx context.Context, userID string) error {
	return expectOne(r.db.exec(ctx, "DELETE FROM two_factor WHERE user_id = ?", userID))
}
