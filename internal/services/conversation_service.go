package services

import (
	"context"
	"fmt"
	"strings"

	"whatsapp-panel-server/internal/db"
	"whatsapp-panel-server/internal/models"
	"whatsapp-panel-server/internal/realtime"
	"whatsapp-panel-server/pkg/evolution"
	"whatsapp-panel-server/pkg/logger"

	"go.uber.org/zap"
)

// MaxMessageLength bounds outgoing WhatsApp text
const MaxMessageLength = 4096

// MessageEvent is the realtime payload of message.new
type MessageEvent struct {
	ConversationID string          `json:"conversation_id"`
	Message        *models.Message `json:"message"`
}

// OutboundRecorder stores messages that left through the gateway and
// notifies the owner's panels
type OutboundRecorder struct {
	conversations db.ConversationRepository
	publisher     Publisher
}

// NewOutboundRecorder creates a new OutboundRecorder
func NewOutboundRecorder(conversations db.ConversationRepository, publisher Publisher) *OutboundRecorder {
	return &OutboundRecorder{conversations: conversations, publisher: publisherOrNop(publisher)}
}

// Record stores an outbound message in an existing conversation
func (r *OutboundRecorder) Record(ctx context.Context, conv *models.Conversation, body, source, externalID string) (*models.Message, error) {
	msg := &models.Message{
		ConversationID: conv.ID,
		UserID:         conv.UserID,
		ExternalID:     externalID,
		Direction:      models.DirectionOutbound,
		Source:         source,
		Body:           body,
	}
	if err := r.conversations.AddMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to store outbound message: %w", err)
	}
	r.publisher.Publish(conv.UserID, realtime.EventMessageNew, MessageEvent{ConversationID: conv.ID, Message: msg})
	return msg, nil
}

// RecordTo stores an outbound message to a phone number, opening the
// conversation when needed
func (r *OutboundRecorder) RecordTo(ctx context.Context, conn *models.Connection, phone, body, source, externalID string) (*models.Message, error) {
	conv, _, err := r.conversations.GetOrCreate(ctx, conn.UserID, conn.ID, evolution.JIDFromNumber(phone), phone, "")
	if err != nil {
		return nil, err
	}
	return r.Record(ctx, conv, body, source, externalID)
}

// ConversationService serves the panel inbox
type ConversationService struct {
	conversations db.ConversationRepository
	connections   db.ConnectionRepository
	outbound      *OutboundRecorder
	gateway       Gateway
	logs          *LogService
}

// NewConversationService creates a new ConversationService
func NewConversationService(conversations db.ConversationRepository, connections db.ConnectionRepository, outbound *OutboundRecorder, gateway Gateway, logs *LogService) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		connections:   connections,
		outbound:      outbound,
		gateway:       gateway,
		logs:          logs,
	}
}

// List returns a page of conversations, optionally for one connection
func (s *ConversationService) List(ctx context.Context, userID, connectionID string, limit, offset int) ([]*models.Conversation, error) {
	return s.conversations.ListByUser(ctx, userID, connectionID, limit, offset)
}

// Messages returns a page of a conversation's messages, newest first
func (s *ConversationService) Messages(ctx context.Context, userID, conversationID string, limit, offset int) ([]*models.Message, error) {
	if _, err := s.conversations.GetByID(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.conversations.ListMessages(ctx, userID, conversationID, limit, offset)
}

// SendMessage sends a manual reply from the panel
func (s *ConversationService) SendMessage(ctx context.Context, userID, conversationID, body string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, validationError("message body is required")
	}
	if len(body) > MaxMessageLength {
		return nil, validationError(fmt.Sprintf("message must be at most %d characters", MaxMessageLength))
	}

	conv, err := s.conversations.GetByID(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	conn, err := s.connections.GetByID(ctx, userID, conv.ConnectionID)
	if err != nil {
		return nil, err
	}
	if !conn.IsConnected() {
		return nil, ErrConnectionNotReady
	}

	sent, err := s.gateway.SendText(ctx, conn.InstanceName, conv.PhoneNumber, body)
	if err != nil {
		logger.Error("Failed to send manual message",
			zap.String("user_id", userID),
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	msg, err := s.outbound.Record(ctx, conv, body, models.SourceManual, sent.Key.ID)
	if err != nil {
		return nil, err
	}
	s.logs.Activity(ctx, userID, "message.sent", "conversation", conv.ID, nil)
	return msg, nil
}

// MarkRead clears the unread counter
func (s *ConversationService) MarkRead(ctx context.Context, userID, conversationID string) error {
	return s.conversations.MarkRead(ctx, userID, conversationID)
}

// Delete removes a conversation and its messages
func (s *ConversationService) Delete(ctx context.Context, userID, conversationID string) error {
	if err := s.conversations.Delete(ctx, userID, conversationID); err != nil {
		return err
	}
	s.logs.Activity(ctx, userID, "conversation.deleted", "conversation", conversationID, nil)
	return nil
}
