package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"whatsapp-panel-server/internal/models"

	"github.com/google/uuid"
)

// AIChatRepository defines the interface for AI chat data access
type AIChatRepository interface {
	CreateChat(ctx context.Context, chat *models.AIChat) error
	GetChat(ctx context.Context, userID, id string) (*models.AIChat, error)
	ListChats(ctx context.Context, userID string) ([]*models.AIChat, error)
	DeleteChat(ctx context.Context, userID, id string) error
	AddMessage(ctx context.Context, msg *models.AIMessage) error
	// ListMessages returns the most recent limit messages in chronological order
	ListMessages(ctx context.Context, chatID string, limit int) ([]*models.AIMessage, error)
}

type aiChatRepository struct {
	db *Database
}

// NewAIChatRepository creates a new AIChatRepository
func NewAIChatRepository(db *Database) AIChatRepository {
	return &aiChatRepository{db: db}
}

func (r *aiChatRepository) CreateChat(ctx context.Context, chat *models.AIChat) error {
	if chat == nil {
		return fmt.Errorf("chat cannot be nil")
	}
	if chat.ID == "" {
		chat.ID = uuid.New().String()
	}
	ts := now()
	chat.CreatedAt = ts
	chat.UpdatedAt = ts

	_, err := r.db.exec(ctx,
		"INSERT INTO ai_chats (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		chat.ID, chat.UserID, chat.Title, chat.CreatedAt, chat.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}
	return nil
}

func (r *aiChatRepository) GetChat(ctx context.Context, userID, id string) (*models.AIChat, error) {
	chat := &models.AIChat{}
	err := r.db.queryRow(ctx,
		"SELECT id, user_id, title, created_at, updated_at FROM ai_chats WHERE id = ? AND user_id = ?",
		id, userID).Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return chat, nil
}

func (r *aiChatRepository) ListChats(ctx context.Context, userID string) ([]*models.AIChat, error) {
	rows, err := r.db.query(ctx,
		"SELECT id, user_id, title, created_at, updated_at FROM ai_chats WHERE user_id = ? ORDER BY updated_at DESC, id",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	chats := []*models.AIChat{}
	for rows.Next() {
		chat := &models.AIChat{}
		if err := rows.Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

func (r *aiChatRepository) DeleteChat(ctx context.Context, userID, id string) error {
	return expectOne(r.db.exec(ctx, "DELETE FROM ai_chats WHERE id = ? AND user_id = ?", id, userID))
}

// AddMessage appends a turn and touches the chat so it sorts first
func (r *aiChatRepository) AddMessage(ctx context.Context, msg *models.AIMessage) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = now()

	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.db.Rebind(
			"INSERT INTO ai_messages (id, chat_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)"),
			msg.ID, msg.ChatID, msg.Role, msg.Content, msg.CreatedAt); err != nil {
			return fmt.Errorf("failed to add chat message: %w", err)
		}
		res, err := tx.ExecContext(ctx, r.db.Rebind("UPDATE ai_chats SET updated_at = ? WHERE id = ?"), msg.CreatedAt, msg.ChatID)
		return expectOne(res, err)
	})
}

func (r *aiChatRepository) ListMessages(ctx context.Context, chatID string, limit int) ([]*models.AIMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.query(ctx, `
		SELECT id, chat_id, role, content, created_at FROM ai_messages
		WHERE chat_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.AIMessage
	for rows.Next() {
		m := &models.AIMessage{}
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// reverse into chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	if messages == nil {
		messages = []*models.AIMessage{}
	}
	return messages, nil
}
