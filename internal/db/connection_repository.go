package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"whatsapp-panel-server/internal/models"

	"github.com/google/uuid"
)

// ConnectionRepository defines the interface for WhatsApp connection data access
type ConnectionRepository interface {
	Create(ctx context.Context, c *models.Connection) error
	GetByID(ctx context.Context, userID, id string) (*models.Connection, error)
	GetByInstance(ctx context.Context, instanceName string) (*models.Connection, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Connection, error)
	UpdateStatus(ctx context.Context, id, status, phoneNumber string) error
	UpdateQRCode(ctx context.Context, id, qrCode string) error
	Delete(ctx context.Context, userID, id string) error
}

type connectionRepository struct {
	db *Database
}

// NewConnectionRepository creates a new ConnectionRepository
func NewConnectionRepository(db *Database) ConnectionRepository {
	return &connectionRepository{db: db}
}

const connectionColumns = `id, user_id, name, instance_name, phone_number, status, qr_code, created_at, updated_at`

func scanConnection(row interface{ Scan(...interface{}) error }) (*models.Connection, error) {
	c := &models.Connection{}
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.InstanceName, &c.PhoneNumber, &c.Status, &c.QRCode, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create stores a new connection
func (r *connectionRepository) Create(ctx context.Context, c *models.Connection) error {
	if c == nil {
		return fmt.Errorf("connection cannot be nil")
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = models.ConnectionDisconnected
	}
	ts := now()
	c.CreatedAt = ts
	c.UpdatedAt = ts

	_, err := r.db.exec(ctx, `
		INSERT INTO whatsapp_connections (`+connectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.UserID, c.Name, c.InstanceName, c.PhoneNumber, c.Status, c.QRCode, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create connection: %w", err)
	}
	return nil
}

// GetByID retrieves a connection owned by userID
func (r *connectionRepository) GetByID(ctx context.Context, userID, id string) (*models.Connection, error) {
	c, err := scanConnection(r.db.queryRow(ctx,
		"SELECT "+connectionColumns+" FROM whatsapp_connections WHERE id = ? AND user_id = ?", id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return c, nil
}

// GetByInstance resolves a connection from the gateway instance name
func (r *connectionRepository) GetByInstance(ctx context.Context, instanceName string) (*models.Connection, error) {
	c, err := scanConnection(r.db.queryRow(ctx,
		"SELECT "+connectionColumns+" FROM whatsapp_connections WHERE instance_name = ?", instanceName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection by instance: %w", err)
	}
	return c, nil
}

// ListByUser lists a user's connections, oldest first
func (r *connectionRepository) ListByUser(ctx context.Context, userID string) ([]*models.Connection, error) {
	rows, err := r.db.query(ctx,
		"SELECT "+connectionColumns+" FROM whatsapp_connections WHERE user_id = ? ORDER BY created_at, id", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	connections := []*models.Connection{}
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		connections = append(connections, c)
	}
	return connections, rows.Err()
}

// UpdateStatus records a state change reported by the gateway.
// An empty phoneNumber keeps the stored one.
func (r *connectionRepository) UpdateStatus(ctx context.Context, id, status, phoneNumber string) error {
	query := "UPDATE whatsapp_connections SET status = ?, updated_at = ?"
	args := []interface{}{status, now()}
	if phoneNumber != "" {
		query += ", phone_number = ?"
		args = append(args, phoneNumber)
	}
	if status == models.ConnectionConnected {
		query += ", qr_code = ''"
	}
	query += " WHERE id = ?"
	args = append(args, id)

	return expectOne(r.db.exec(ctx, query, args...))
}

// UpdateQRCode stores the latest pairing QR code
func (r *connectionRepository) UpdateQRCode(ctx context.Context, id, qrCode string) error {
	return expectOne(r.db.exec(ctx,
		"UPDATE whatsapp_connections SET qr_code = ?, updated_at = ? WHERE id = ?",
		qrCode, now(), id))
}

// Delete removes a connection owned by userID
func (r *connectionRepository) Delete(ctx context.Context, userID, id string) error {
	return expectOne(r.db.exec(ctx,
		"DELETE FROM whatsapp_connections WHERE id = ? AND user_id = ?", id, userID))
}
