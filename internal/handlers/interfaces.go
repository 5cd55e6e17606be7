package handlers

import (
	"context"
	"time"

	"whatsapp-panel-server/internal/models"
	"whatsapp-panel-server/internal/realtime"
	"whatsapp-panel-server/pkg/evolution"
)

// ProfileServiceInterface defines the contract for profile operations
type ProfileServiceInterface interface {
	Get(ctx context.Context, userID string) (*models.Profile, error)
	UpdateName(ctx context.Context, userID, fullName string) (*models.Profile, error)
}

// TwoFactorServiceInterface defines the contract for TOTP enrolment and checks
type TwoFactorServiceInterface interface {
	Setup(ctx context.Context, userID string) (*models.TwoFactorSetupResponse, error)
	Enable(ctx context.Context, userID, code string) ([]string, error)
	Verify(ctx context.Context, userID, code string) error
	Disable(ctx context.Context, userID, code string) error
	Status(ctx context.Context, userID string) (*models.TwoFactorStatus, error)
}

// ConnectionServiceInterface defines the contract for WhatsApp connection operations
type ConnectionServiceInterface interface {
	Create(ctx context.Context, userID, name string) (*models.Connection, error)
	List(ctx context.Context, userID string) ([]*models.Connection, error)
	Get(ctx context.Context, userID, id string) (*models.Connection, error)
	Connect(ctx context.Context, userID, id string) (*models.Connection, error)
	RefreshState(ctx context.Context, userID, id string) (*models.Connection, error)
	Disconnect(ctx context.Context, userID, id string) (*models.Connection, error)
	Delete(ctx context.Context, userID, id string) error
}

// ConversationServiceInterface defines the contract for inbox operations
type ConversationServiceInterface interface {
	List(ctx context.Context, userID, connectionID string, limit, offset int) ([]*models.Conversation, error)
	Messages(ctx context.Context, userID, conversationID string, limit, offset int) ([]*models.Message, error)
	SendMessage(ctx context.Context, userID, conversationID, body string) (*models.Message, error)
	MarkRead(ctx context.Context, userID, conversationID string) error
	Delete(ctx context.Context, userID, conversationID string) error
}

// AutomationServiceInterface defines the contract for auto-reply rule operations
type AutomationServiceInterface interface {
	List(ctx context.Context, userID string) ([]*models.Automation, error)
	Get(ctx context.Context, userID, id string) (*models.Automation, error)
	Create(ctx context.Context, userID string, req *models.AutomationRequest) (*models.Automation, error)
	Update(ctx context.Context, userID, id string, req *models.AutomationRequest) (*models.Automation, error)
	Delete(ctx context.Context, userID, id string) error
}

// SchedulerServiceInterface defines the contract for scheduled message operations
type SchedulerServiceInterface interface {
	List(ctx context.Context, userID, status string, limit, offset int) ([]*models.ScheduledMessage, error)
	Get(ctx context.Context, userID, id string) (*models.ScheduledMessage, error)
	Create(ctx context.Context, userID string, req *models.ScheduledMessageRequest) (*models.ScheduledMessage, error)
	Update(ctx context.Context, userID, id string, req *models.ScheduledMessageRequest) (*models.ScheduledMessage, error)
	Cancel(ctx context.Context, userID, id string) error
	Delete(ctx context.Context, userID, id string) error
}

// DispatcherInterface runs one scheduled message dispatch pass
type DispatcherInterface interface {
	ProcessDue(ctx context.Context, now time.Time) (*models.DispatchResult, error)
}

// AIServiceInterface defines the contract for assistant chat operations
type AIServiceInterface interface {
	CreateChat(ctx context.Context, userID, title string) (*models.AIChat, error)
	ListChats(ctx context.Context, userID string) ([]*models.AIChat, error)
	DeleteChat(ctx context.Context, userID, chatID string) error
	Messages(ctx context.Context, userID, chatID string) ([]*models.AIMessage, error)
	SendMessage(ctx context.Context, userID, chatID, content string) (*models.AIMessage, error)
}

// LogServiceInterface defines the contract for reading logs
type LogServiceInterface interface {
	ListSystem(ctx context.Context, level string, limit, offset int) ([]*models.SystemLog, error)
	ListActivity(ctx context.Context, userID string, limit, offset int) ([]*models.ActivityLog, error)
}

// WebhookServiceInterface applies gateway events
type WebhookServiceInterface interface {
	HandleEvent(ctx context.Context, event *evolution.WebhookEvent) error
}

// SubscriberRegistry tracks realtime subscribers; *realtime.Hub implements it
type SubscriberRegistry interface {
	Subscribe(userID string, s realtime.Subscriber)
	Unsubscribe(userID string, s realtime.Subscriber)
}
