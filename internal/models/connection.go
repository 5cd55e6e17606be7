package models

import "time"

// Connection states as stored in whatsapp_connections.status
const (
	ConnectionDisconnected = "disconnected"
	ConnectionConnecting   = "connecting"
	ConnectionConnected    = "connected"
)

// Connection is a WhatsApp number attached through an Evolution API instance
type Connection struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	InstanceName string    `json:"instance_name"`
	PhoneNumber  string    `json:"phone_number,omitempty"`
	Status       string    `json:"status"`
	QRCode       string    `json:"qr_code,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsConnected reports whether the instance can currently send messages
func (c *Connection) IsConnected() bool {
	return c.Status == ConnectionConnected
}

// CreateConnectionRequest represents the request body for adding a connection
type CreateConnectionRequest struct {
	Name string `json:"name" binding:"required,min=1,max=60"`
}
