package models

import "time"

// Message directions
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message sources, used to tell automation and scheduled replies apart from manual ones
const (
	SourceContact    = "contact"
	SourceManual     = "manual"
	SourceAutomation = "automation"
	SourceScheduled  = "scheduled"
)

// Conversation is a chat with one remote WhatsApp contact on one connection
type Conversation struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	ConnectionID       string     `json:"connection_id"`
	RemoteJID          string     `json:"remote_jid"`
	ContactName        string     `json:"contact_name"`
	PhoneNumber        string     `json:"phone_number"`
	LastMessagePreview string     `json:"last_message_preview"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	UnreadCount        int        `json:"unread_count"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Message is a single WhatsApp message inside a conversation
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	ExternalID     string    `json:"external_id,omitempty"`
	Direction      string    `json:"direction"`
	Source         string    `json:"source"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sent_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// SendMessageRequest represents the request body for sending a manual message
type SendMessageRequest struct {
	Body string `json:"body" binding:"required,max=4096"`
}

// PreviewLength bounds last_message_preview
const PreviewLength = 120

// Preview truncates a message body for conversation listings
func Preview(body string) string {
	r := []rune(body)
	if len(r) <= PreviewLength {
		return body
	}
	return string(r[:PreviewLength-1]) + "…"
}
