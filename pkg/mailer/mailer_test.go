package mailer

import (
	"context"
	"errors"
	"testing"

	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	got *resend.SendEmailRequest
	err error
}

func (f *fakeSender) SendWithContext(_ context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	f.got = params
	if f.err != nil {
		return nil, f.err
	}
	return &resend.SendEmailResponse{Id: "email-1"}, nil
}

func TestMailer_Disabled(t *testing.T) {
	m := New("", "Panel <no-reply@example.com>")
	assert.False(t, m.Enabled())

	id, err := m.Send(context.Background(), "ana@example.com", "s", "<p>h</p>", "h")
	require.NoError(t, err)
	assert.Empty(t, id)

	var nilMailer *Mailer
	assert.False(t, nilMailer.Enabled())
}

func TestMailer_Send(t *testing.T) {
	sender := &fakeSender{}
	m := &Mailer{from: "Panel <no-reply@example.com>", emails: sender}

	id, err := m.Send(context.Background(), "ana@example.com", "Delivery failed", "<p>x</p>", "x")
	require.NoError(t, err)
	assert.Equal(t, "email-1", id)
	require.NotNil(t, sender.got)
	assert.Equal(t, []string{"ana@example.com"}, sender.got.To)
	assert.Equal(t, "Panel <no-reply@example.com>", sender.got.From)
	assert.Equal(t, "Delivery failed", sender.got.Subject)

	_, err = m.Send(context.Background(), "", "s", "", "")
	assert.ErrorIs(t, err, ErrNoRecipient)

	sender.err = errors.New("rate limited")
	_, err = m.Send(context.Background(), "ana@example.com", "s", "", "")
	assert.ErrorContains(t, err, "rate limited")
}

func TestNew_WithKeyIsEnabled(t *testing.T) {
	m := New("re_test", "Panel <no-reply@example.com>")
	assert.True(t, m.Enabled())
}
