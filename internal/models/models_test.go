package models

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short"))

	exact := strings.Repeat("a", PreviewLength)
	assert.Equal(t, exact, Preview(exact))

	long := strings.Repeat("é", PreviewLength+10)
	got := Preview(long)
	assert.Equal(t, PreviewLength, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestAutomation_AppliesTo(t *testing.T) {
	empty := ""
	conn := "conn-1"

	tests := []struct {
		name         string
		connectionID *string
		target       string
		expected     bool
	}{
		{"all connections", nil, "conn-2", true},
		{"empty id means all", &empty, "conn-2", true},
		{"same connection", &conn, "conn-1", true},
		{"other connection", &conn, "conn-2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Automation{ConnectionID: tt.connectionID}
			assert.Equal(t, tt.expected, a.AppliesTo(tt.target))
		})
	}
}

func TestScheduledMessage_IsRecurring(t *testing.T) {
	assert.False(t, (&ScheduledMessage{}).IsRecurring())
	assert.False(t, (&ScheduledMessage{Recurrence: RecurrenceNone}).IsRecurring())
	assert.True(t, (&ScheduledMessage{Recurrence: RecurrenceDaily}).IsRecurring())
	assert.True(t, (&ScheduledMessage{Recurrence: RecurrenceMonthly}).IsRecurring())
}

func TestConnection_IsConnected(t *testing.T) {
	assert.True(t, (&Connection{Status: ConnectionConnected}).IsConnected())
	assert.False(t, (&Connection{Status: ConnectionConnecting}).IsConnected())
	assert.False(t, (&Connection{Status: ConnectionDisconnected}).IsConnected())
}
