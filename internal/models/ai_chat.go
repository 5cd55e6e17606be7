package models

import "time"

// AI message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// AIChat is a conversation with the assistant inside the panel
type AIChat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AIMessage is one turn of an AIChat
type AIMessage struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateAIChatRequest represents the request body for a new AI chat
type CreateAIChatRequest struct {
	Title string `json:"title" binding:"max=120"`
}

// AIMessageRequest represents a user prompt
type AIMessageRequest struct {
	Content string `json:"content" binding:"required,max=8000"`
}
