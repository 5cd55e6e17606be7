package services

import (
	"context"
	"errors"
	"fmt"

	"whatsapp-panel-server/internal/db"
	"whatsapp-panel-server/internal/metrics"
	"whatsapp-panel-server/internal/models"
	"whatsapp-panel-server/internal/realtime"
	"whatsapp-panel-server/pkg/evolution"
	"whatsapp-panel-server/pkg/logger"

	"go.uber.org/zap"
)

// Webhook processing results, used as metric labels
const (
	webhookProcessed = "processed"
	webhookIgnored   = "ignored"
	webhookFailed    = "failed"
)

// WebhookService applies Evolution API events to the panel state
type WebhookService struct {
	connections   db.ConnectionRepository
	conversations db.ConversationRepository
	automations   *AutomationService
	publisher     Publisher
	logs          *LogService
}

// NewWebhookService creates a new WebhookService
func NewWebhookService(connections db.ConnectionRepository, conversations db.ConversationRepository, automations *AutomationService, publisher Publisher, logs *LogService) *WebhookService {
	return &WebhookService{
		connections:   connections,
		conversations: conversations,
		automations:   automations,
		publisher:     publisherOrNop(publisher),
		logs:          logs,
	}
}

// HandleEvent processes one webhook delivery. Events for unknown instances
// and unsupported event types are ignored without error.
func (s *WebhookService) HandleEvent(ctx context.Context, event *evolution.WebhookEvent) error {
	name := event.NormalizedEvent()

	conn, err := s.connections.GetByInstance(ctx, event.Instance)
	if errors.Is(err, db.ErrNotFound) {
		metrics.WebhookEvents.WithLabelValues(name, webhookIgnored).Inc()
		logger.Debug("Webhook for unknown instance ignored",
			zap.String("instance", event.Instance),
			zap.String("event", name),
		)
		return nil
	}
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(name, webhookFailed).Inc()
		return fmt.Errorf("failed to resolve instance: %w", err)
	}

	switch name {
	case evolution.EventMessagesUpsert:
		err = s.handleMessages(ctx, conn, event)
	case evolution.EventConnectionUpdate:
		err = s.handleConnectionUpdate(ctx, conn, event)
	case evolution.EventQRCodeUpdated:
		err = s.handleQRCode(ctx, conn, event)
	default:
		metrics.WebhookEvents.WithLabelValues(name, webhookIgnored).Inc()
		return nil
	}

	if err != nil {
		metrics.WebhookEvents.WithLabelValues(name, webhookFailed).Inc()
		s.logs.System(ctx, models.LevelError, "webhook", "Failed to process webhook event", conn.UserID, map[string]interface{}{
			"event":    name,
			"instance": event.Instance,
			"error":    err.Error(),
		})
		return err
	}
	metrics.WebhookEvents.WithLabelValues(name, webhookProcessed).Inc()
	return nil
}

func (s *WebhookService) handleMessages(ctx context.Context, conn *models.Connection, event *evolution.WebhookEvent) error {
	messages, err := event.Messages()
	if err != nil {
		return err
	}
	for i := range messages {
		if err := s.handleMessage(ctx, conn, &messages[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *WebhookService) handleMessage(ctx context.Context, conn *models.Connection, data *evolution.MessageData) error {
	text := data.Text()
	jid := data.Key.RemoteJID
	if data.Key.FromMe || text == "" || jid == "" || evolution.IsGroupJID(jid) {
		return nil
	}

	conv, created, err := s.conversations.GetOrCreate(ctx, conn.UserID, conn.ID, jid, evolution.NumberFromJID(jid), data.PushName)
	if err != nil {
		return err
	}

	exists, err := s.conversations.MessageExists(ctx, conv.ID, data.Key.ID)
	if err != nil {
		return err
	}
	if exists {
		logger.Debug("Duplicate webhook message skipped",
			zap.String("conversation_id", conv.ID),
			zap.String("external_id", data.Key.ID),
		)
		return nil
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		UserID:         conn.UserID,
		ExternalID:     data.Key.ID,
		Direction:      models.DirectionInbound,
		Source:         models.SourceContact,
		Body:           text,
		SentAt:         data.MessageTimestamp.Time(),
	}
	if err := s.conversations.AddMessage(ctx, msg); err != nil {
		return err
	}
	s.publisher.Publish(conn.UserID, realtime.EventMessageNew, MessageEvent{ConversationID: conv.ID, Message: msg})

	if s.automations == nil {
		return nil
	}
	if _, err := s.automations.HandleInbound(ctx, conn, conv, msg, created); err != nil {
		// reply failures are recorded but never fail the delivery
		s.logs.System(ctx, models.LevelError, "automation", "Automation reply failed", conn.UserID, map[string]interface{}{
			"conversation_id": conv.ID,
			"error":           err.Error(),
		})
	}
	return nil
}

func (s *WebhookService) handleConnectionUpdate(ctx context.Context, conn *models.Connection, event *evolution.WebhookEvent) error {
	data, err := event.Connection()
	if err != nil {
		return err
	}

	status := MapState(data.State)
	phone := ""
	if data.WUID != "" {
		phone = evolution.NumberFromJID(data.WUID)
	}
	if err := s.connections.UpdateStatus(ctx, conn.ID, status, phone); err != nil {
		return err
	}

	if status != conn.Status {
		s.logs.Activity(ctx, conn.UserID, "connection."+status, "connection", conn.ID, map[string]interface{}{
			"state": data.State,
		})
	}
	return s.publishConnection(ctx, conn)
}

func (s *WebhookService) handleQRCode(ctx context.Context, conn *models.Connection, event *evolution.WebhookEvent) error {
	qr, err := event.QRCode()
	if err != nil {
		return err
	}
	if qr.Base64 == "" {
		return nil
	}
	if err := s.connections.UpdateQRCode(ctx, conn.ID, qr.Base64); err != nil {
		return err
	}
	return s.publishConnection(ctx, conn)
}

func (s *WebhookService) publishConnection(ctx context.Context, conn *models.Connection) error {
	fresh, err := s.connections.GetByID(ctx, conn.UserID, conn.ID)
	if err != nil {
		return err
	}
	s.publisher.Publish(conn.UserID, realtime.EventConnectionUpdate, fresh)
	return nil
}
