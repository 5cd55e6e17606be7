// Package mailer sends transactional email through Resend.
package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// ErrNoRecipient is returned when the destination address is empty
var ErrNoRecipient = errors.New("email recipient is required")

type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Mailer sends email; without an API key every send is a no-op
type Mailer struct {
	from   string
	emails emailSender
}

// New creates a Mailer
func New(apiKey, from string) *Mailer {
	m := &Mailer{from: from}
	if apiKey != "" {
		m.emails = resend.NewClient(apiKey).Emails
	}
	return m
}

// Enabled reports whether email delivery is configured
func (m *Mailer) Enabled() bool {
	return m != nil && m.emails != nil
}

// Send delivers a message and returns the provider id; the id is empty when disabled
func (m *Mailer) Send(ctx context.Context, to, subject, html, text string) (string, error) {
	if !m.Enabled() {
		return "", nil
	}
	if to == "" {
		return "", ErrNoRecipient
	}

	sent, err := m.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
		Text:    text,
	})
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	return sent.Id, nil
}
