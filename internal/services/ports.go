package services

import (
	"context"

	"whatsapp-panel-server/pkg/evolution"
	"whatsapp-panel-server/pkg/gemini"
)

// Gateway is the WhatsApp gateway the services drive; *evolution.Client implements it
type Gateway interface {
	SendText(ctx context.Context, instance, number, text string) (*evolution.SendResult, error)
	CreateInstance(ctx context.Context, name, webhookURL string) (*evolution.CreateInstanceResult, error)
	Connect(ctx context.Context, instance string) (*evolution.QRCode, error)
	ConnectionState(ctx context.Context, instance string) (string, error)
	Logout(ctx context.Context, instance string) error
	DeleteInstance(ctx context.Context, instance string) error
}

// Publisher pushes realtime events to a user's open panels; *realtime.Hub implements it
type Publisher interface {
	Publish(userID, eventType string, payload interface{})
}

// Completer produces model replies; *gemini.Client implements it
type Completer interface {
	Generate(ctx context.Context, system string, history []gemini.Turn, prompt string) (string, error)
}

// Notifier sends email; *mailer.Mailer implements it
type Notifier interface {
	Enabled() bool
	Send(ctx context.Context, to, subject, html, text string) (string, error)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string, interface{}) {}

func publisherOrNop(p Publisher) Publisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}
