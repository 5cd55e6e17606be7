package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"whatsapp-panel-server/internal/models"

	"github.com/google/uuid"
)

// ConversationRepository defines the interface for conversation and message data access
type ConversationRepository interface {
	GetOrCreate(ctx context.Context, userID, connectionID, remoteJID, phoneNumber, contactName string) (*models.Conversation, bool, error)
	GetByID(ctx context.Context, userID, id string) (*models.Conversation, error)
	ListByUser(ctx context.Context, userID, connectionID string, limit, offset int) ([]*models.Conversation, error)
	MarkRead(ctx context.Context, userID, id string) error
	Delete(ctx context.Context, userID, id string) error

	AddMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, userID, conversationID string, limit, offset int) ([]*models.Message, error)
	MessageExists(ctx context.Context, conversationID, externalID string) (bool, error)
	CountMessages(ctx context.Context, conversationID string) (int, error)
}

type conversationRepository struct {
	db *Database
}

// NewConversationRepository creates a new ConversationRepository
func NewConversationRepository(db *Database) ConversationRepository {
	return &conversationRepository{db: db}
}

const conversationColumns = `id, user_id, connection_id, remote_jid, contact_name, phone_number,
	last_message_preview, last_message_at, unread_count, created_at, updated_at`

func scanConversation(row interface{ Scan(...interface{}) error }) (*models.Conversation, error) {
	c := &models.Conversation{}
	var lastAt sql.NullTime
	err := row.Scan(&c.ID, &c.UserID, &c.ConnectionID, &c.RemoteJID, &c.ContactName, &c.PhoneNumber,
		&c.LastMessagePreview, &lastAt, &c.UnreadCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.LastMessageAt = timePtr(lastAt)
	return c, nil
}

// GetOrCreate returns the conversation for a remote JID on a connection,
// creating it when absent. The bool reports whether it was created.
// A non-empty contactName refreshes the stored one.
func (r *conversationRepository) GetOrCreate(ctx context.Context, userID, connectionID, remoteJID, phoneNumber, contactName string) (*models.Conversation, bool, error) {
	if connectionID == "" || remoteJID == "" {
		return nil, false, fmt.Errorf("connection ID and remote JID are required")
	}

	ts := now()
	res, err := r.db.exec(ctx, `
		INSERT INTO conversations (id, user_id, connection_id, remote_jid, contact_name, phone_number,
			last_message_preview, unread_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, '', 0, ?, ?)
		ON CONFLICT (connection_id, remote_jid) DO NOTHING
	`, uuid.New().String(), userID, connectionID, remoteJID, contactName, phoneNumber, ts, ts)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create conversation: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	if inserted == 0 && contactName != "" {
		if _, err := r.db.exec(ctx, `
			UPDATE conversations SET contact_name = ?, updated_at = ?
			WHERE connection_id = ? AND remote_jid = ? AND contact_name <> ?
		`, contactName, ts, connectionID, remoteJID, contactName); err != nil {
			return nil, false, fmt.Errorf("failed to refresh contact name: %w", err)
		}
	}

	conv, err := scanConversation(r.db.queryRow(ctx,
		"SELECT "+conversationColumns+" FROM conversations WHERE connection_id = ? AND remote_jid = ?",
		connectionID, remoteJID))
	if err != nil {
		return nil, false, fmt.Errorf("failed to load conversation: %w", err)
	}
	return conv, inserted > 0, nil
}

// GetByID retrieves a conversation owned by userID
func (r *conversationRepository) GetByID(ctx context.Context, userID, id string) (*models.Conversation, error) {
	conv, err := scanConversation(r.db.queryRow(ctx,
		"SELECT "+conversationColumns+" FROM conversations WHERE id = ? AND user_id = ?", id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// ListByUser lists conversations by most recent activity.
// An empty connectionID lists across all connections.
func (r *conversationRepository) ListByUser(ctx context.Context, userID, connectionID string, limit, offset int) ([]*models.Conversation, error) {
	limit, offset = clampPage(limit, offset, 50, 200)

	query := "SELECT " + conversationColumns + " FROM conversations WHERE user_id = ?"
	args := []interface{}{userID}
	if connectionID != "" {
		query += " AND connection_id = ?"
		args = append(args, connectionID)
	}
	query += " ORDER BY COALESCE(last_message_at, created_at) DESC, id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := []*models.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// MarkRead clears the unread counter
func (r *conversationRepository) MarkRead(ctx context.Context, userID, id string) error {
	return expectOne(r.db.exec(ctx,
		"UPDATE conversations SET unread_count = 0, updated_at = ? WHERE id = ? AND user_id = ?",
		now(), id, userID))
}

// Delete removes a conversation and its messages
func (r *conversationRepository) Delete(ctx context.Context, userID, id string) error {
	return expectOne(r.db.exec(ctx,
		"DELETE FROM conversations WHERE id = ? AND user_id = ?", id, userID))
}

// AddMessage stores a message and updates the conversation summary.
// Inbound messages increment the unread counter.
func (r *conversationRepository) AddMessage(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return errors.New("message cannot be nil")
	}
	if msg.ConversationID == "" || msg.UserID == "" {
		return errors.New("message requires conversation and user")
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	ts := now()
	msg.CreatedAt = ts
	if msg.SentAt.IsZero() {
		msg.SentAt = ts
	}
	msg.SentAt = msg.SentAt.UTC()

	unread := 0
	if msg.Direction == models.DirectionInbound {
		unread = 1
	}

	var externalID *string
	if msg.ExternalID != "" {
		externalID = &msg.ExternalID
	}

	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, r.db.Rebind(`
			INSERT INTO messages (id, conversation_id, user_id, external_id, direction, source, body, sent_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`), msg.ID, msg.ConversationID, msg.UserID, nullString(externalID), msg.Direction, msg.Source, msg.Body, msg.SentAt, msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to add message: %w", err)
		}

		res, err := tx.ExecContext(ctx, r.db.Rebind(`
			UPDATE conversations
			SET last_message_preview = ?, last_message_at = ?, unread_count = unread_count + ?, updated_at = ?
			WHERE id = ?
		`), models.Preview(msg.Body), msg.SentAt, unread, ts, msg.ConversationID)
		if err := expectOne(res, err); err != nil {
			return fmt.Errorf("failed to update conversation summary: %w", err)
		}
		return nil
	})
}

// ListMessages returns a page of messages, newest first
func (r *conversationRepository) ListMessages(ctx context.Context, userID, conversationID string, limit, offset int) ([]*models.Message, error) {
	limit, offset = clampPage(limit, offset, 50, 200)

	rows, err := r.db.query(ctx, `
		SELECT id, conversation_id, user_id, external_id, direction, source, body, sent_at, created_at
		FROM messages
		WHERE conversation_id = ? AND user_id = ?
		ORDER BY sent_at DESC, created_at DESC
		LIMIT ? OFFSET ?
	`, conversationID, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		m := &models.Message{}
		var externalID sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.UserID, &externalID, &m.Direction, &m.Source, &m.Body, &m.SentAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.ExternalID = externalID.String
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MessageExists reports whether a gateway message id was already stored
func (r *conversationRepository) MessageExists(ctx context.Context, conversationID, externalID string) (bool, error) {
	if externalID == "" {
		return false, nil
	}
	var n int
	err := r.db.queryRow(ctx,
		"SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND external_id = ?",
		conversationID, externalID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check message: %w", err)
	}
	return n > 0, nil
}

// CountMessages returns how many messages a conversation holds
func (r *conversationRepository) CountMessages(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := r.db.queryRow(ctx, "SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}
