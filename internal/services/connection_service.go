package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"whatsapp-panel-server/internal/db"
	"whatsapp-panel-server/internal/models"
	"whatsapp-panel-server/internal/realtime"
	"whatsapp-panel-server/pkg/evolution"
	"whatsapp-panel-server/pkg/logger"
	"whatsapp-panel-server/pkg/utils"

	"go.uber.org/zap"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// MapState converts a gateway connection state into a stored status
func MapState(state string) string {
	switch strings.ToLower(state) {
	case "open":
		return models.ConnectionConnected
	case "connecting":
		return models.ConnectionConnecting
	default:
		return models.ConnectionDisconnected
	}
}

// ConnectionService manages WhatsApp connections backed by gateway instances
type ConnectionService struct {
	repo       db.ConnectionRepository
	gateway    Gateway
	publisher  Publisher
	logs       *LogService
	webhookURL string
}

// NewConnectionService creates a new ConnectionService. webhookURL is where
// new instances post their events.
func NewConnectionService(repo db.ConnectionRepository, gateway Gateway, publisher Publisher, logs *LogService, webhookURL string) *ConnectionService {
	return &ConnectionService{
		repo:       repo,
		gateway:    gateway,
		publisher:  publisherOrNop(publisher),
		logs:       logs,
		webhookURL: webhookURL,
	}
}

// InstanceName derives a gateway instance name from the owner and the
// connection name; suffix keeps names unique
func InstanceName(userID, name, suffix string) string {
	owner := nonSlug.ReplaceAllString(strings.ToLower(userID), "")
	if len(owner) > 8 {
		owner = owner[:8]
	}
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if len(slug) > 24 {
		slug = strings.Trim(slug[:24], "-")
	}
	if slug == "" {
		slug = "wa"
	}
	return fmt.Sprintf("%s-%s-%s", owner, slug, strings.ToLower(suffix))
}

// Create registers an instance on the gateway and stores the connection
func (s *ConnectionService) Create(ctx context.Context, userID, name string) (*models.Connection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("name is required")
	}

	suffix, err := utils.RandomCode(4)
	if err != nil {
		return nil, err
	}
	instance := InstanceName(userID, name, suffix)

	created, err := s.gateway.CreateInstance(ctx, instance, s.webhookURL)
	if err != nil {
		logger.Error("Failed to create gateway instance",
			zap.String("user_id", userID),
			zap.String("instance", instance),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}

	conn := &models.Connection{
		UserID:       userID,
		Name:         name,
		InstanceName: instance,
		Status:       models.ConnectionConnecting,
		QRCode:       created.QRCode.Base64,
	}
	if err := s.repo.Create(ctx, conn); err != nil {
		if delErr := s.gateway.DeleteInstance(ctx, instance); delErr != nil {
			logger.Warn("Failed to roll back gateway instance",
				zap.String("instance", instance),
				zap.Error(delErr),
			)
		}
		return nil, err
	}

	s.logs.Activity(ctx, userID, "connection.created", "connection", conn.ID, map[string]interface{}{"instance": instance})
	return conn, nil
}

// List returns the user's connections
func (s *ConnectionService) List(ctx context.Context, userID string) ([]*models.Connection, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Get returns one connection
func (s *ConnectionService) Get(ctx context.Context, userID, id string) (*models.Connection, error) {
	return s.repo.GetByID(ctx, userID, id)
}

// Connect requests a pairing QR code
func (s *ConnectionService) Connect(ctx context.Context, userID, id string) (*models.Connection, error) {
	conn, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	qr, err := s.gateway.Connect(ctx, conn.InstanceName)
	if err != nil {
		return nil, fmt.Errorf("failed to request QR code: %w", err)
	}

	if qr.Base64 != "" {
		if err := s.repo.UpdateQRCode(ctx, conn.ID, qr.Base64); err != nil {
			return nil, err
		}
	}
	if !conn.IsConnected() {
		if err := s.repo.UpdateStatus(ctx, conn.ID, models.ConnectionConnecting, ""); err != nil {
			return nil, err
		}
	}
	return s.reload(ctx, conn)
}

// RefreshState asks the gateway for the live state and stores it
func (s *ConnectionService) RefreshState(ctx context.Context, userID, id string) (*models.Connection, error) {
	conn, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	state, err := s.gateway.ConnectionState(ctx, conn.InstanceName)
	if err != nil {
		return nil, fmt.Errorf("failed to read connection state: %w", err)
	}

	if status := MapState(state); status != conn.Status {
		if err := s.repo.UpdateStatus(ctx, conn.ID, status, ""); err != nil {
			return nil, err
		}
	}
	return s.reload(ctx, conn)
}

// Disconnect logs the WhatsApp session out
func (s *ConnectionService) Disconnect(ctx context.Context, userID, id string) (*models.Connection, error) {
	conn, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if err := s.gateway.Logout(ctx, conn.InstanceName); err != nil && !isGatewayNotFound(err) {
		return nil, fmt.Errorf("failed to log out: %w", err)
	}
	if err := s.repo.UpdateStatus(ctx, conn.ID, models.ConnectionDisconnected, ""); err != nil {
		return nil, err
	}

	s.logs.Activity(ctx, userID, "connection.disconnected", "connection", conn.ID, nil)
	return s.reload(ctx, conn)
}

// Delete removes the gateway instance and the connection
func (s *ConnectionService) Delete(ctx context.Context, userID, id string) error {
	conn, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.gateway.DeleteInstance(ctx, conn.InstanceName); err != nil && !isGatewayNotFound(err) {
		return fmt.Errorf("failed to delete instance: %w", err)
	}
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}

	s.logs.Activity(ctx, userID, "connection.deleted", "connection", id, map[string]interface{}{"instance": conn.InstanceName})
	return nil
}

func (s *ConnectionService) reload(ctx context.Context, conn *models.Connection) (*models.Connection, error) {
	fresh, err := s.repo.GetByID(ctx, conn.UserID, conn.ID)
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(fresh.UserID, realtime.EventConnectionUpdate, fresh)
	return fresh, nil
}

func isGatewayNotFound(err error) bool {
	var apiErr *evolution.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
