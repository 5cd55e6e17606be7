package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"whatsapp-panel-server/internal/db"
	"whatsapp-panel-server/internal/models"
	"whatsapp-panel-server/pkg/logger"

	"go.uber.org/zap"
)

// ProfileService keeps the local profile row of every authenticated user
type ProfileService struct {
	repo db.ProfileRepository
	// known caches user ids whose profile row exists
	known sync.Map
}

// NewProfileService creates a new ProfileService
func NewProfileService(repo db.ProfileRepository) *ProfileService {
	return &ProfileService{repo: repo}
}

// Ensure creates the profile of a first-time user. Repeated calls for the
// same user hit the in-memory cache.
func (s *ProfileService) Ensure(ctx context.Context, userID, email string) error {
	if userID == "" {
		return errors.New("user ID cannot be empty")
	}
	if cached, ok := s.known.Load(userID); ok && cached.(string) == email {
		return nil
	}

	if err := s.repo.Upsert(ctx, userID, email); err != nil {
		logger.Error("Failed to ensure profile",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return err
	}
	s.known.Store(userID, email)
	return nil
}

// Get returns the caller's profile
func (s *ProfileService) Get(ctx context.Context, userID string) (*models.Profile, error) {
	return s.repo.GetByID(ctx, userID)
}

// Email returns the stored email of a user, or "" when unknown
func (s *ProfileService) Email(ctx context.Context, userID string) string {
	p, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return ""
	}
	return p.Email
}

// UpdateName changes the display name
func (s *ProfileService) UpdateName(ctx context.Context, userID, fullName string) (*models.Profile, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, validationError("full name is required")
	}
	if err := s.repo.UpdateName(ctx, userID, fullName); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return s.repo.GetByID(ctx, userID)
}
