package evolution

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WebhookEvent is the envelope Evolution API posts for every event
type WebhookEvent struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
	Sender   string          `json:"sender,omitempty"`
	APIKey   string          `json:"apikey,omitempty"`
}

// NormalizedEvent lower-cases the event name and converts the
// MESSAGES_UPSERT spelling some gateway versions use
func (e *WebhookEvent) NormalizedEvent() string {
	return strings.ToLower(strings.ReplaceAll(e.Event, "_", "."))
}

// Timestamp is a unix time that may arrive as a number or a string
type Timestamp int64

// UnmarshalJSON implements json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*t = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s", string(b))
	}
	*t = Timestamp(n)
	return nil
}

// Time converts to time.Time; zero stays zero
func (t Timestamp) Time() time.Time {
	if t == 0 {
		return time.Time{}
	}
	return time.Unix(int64(t), 0).UTC()
}

// MessageData is the payload of messages.upsert
type MessageData struct {
	Key      MessageKey `json:"key"`
	PushName string     `json:"pushName"`
	Message  struct {
		Conversation        string `json:"conversation"`
		ExtendedTextMessage struct {
			Text string `json:"text"`
		} `json:"extendedTextMessage"`
		ImageMessage struct {
			Caption string `json:"caption"`
		} `json:"imageMessage"`
	} `json:"message"`
	MessageType      string    `json:"messageType"`
	MessageTimestamp Timestamp `json:"messageTimestamp"`
}

// Text returns the textual content of the message, if any
func (m *MessageData) Text() string {
	switch {
	case m.Message.Conversation != "":
		return m.Message.Conversation
	case m.Message.ExtendedTextMessage.Text != "":
		return m.Message.ExtendedTextMessage.Text
	default:
		return m.Message.ImageMessage.Caption
	}
}

// ConnectionData is the payload of connection.update
type ConnectionData struct {
	Instance     string `json:"instance"`
	State        string `json:"state"`
	StatusReason int    `json:"statusReason"`
	WUID         string `json:"wuid"`
}

// QRCodeData is the payload of qrcode.updated
type QRCodeData struct {
	QRCode QRCode `json:"qrcode"`
}

// Messages decodes a messages.upsert payload. Depending on the gateway
// version data is a single message or a list.
func (e *WebhookEvent) Messages() ([]MessageData, error) {
	trimmed := strings.TrimSpace(string(e.Data))
	if strings.HasPrefix(trimmed, "[") {
		var list []MessageData
		if err := json.Unmarshal(e.Data, &list); err != nil {
			return nil, fmt.Errorf("invalid messages payload: %w", err)
		}
		return list, nil
	}
	var single MessageData
	if err := json.Unmarshal(e.Data, &single); err != nil {
		return nil, fmt.Errorf("invalid message payload: %w", err)
	}
	return []MessageData{single}, nil
}

// Connection decodes a connection.update payload
func (e *WebhookEvent) Connection() (*ConnectionData, error) {
	var data ConnectionData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("invalid connection payload: %w", err)
	}
	return &data, nil
}

// QRCode decodes a qrcode.updated payload
func (e *WebhookEvent) QRCode() (*QRCode, error) {
	var data QRCodeData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("invalid qrcode payload: %w", err)
	}
	return &data.QRCode, nil
}

// NumberFromJID strips the WhatsApp server part and device suffix of a JID
func NumberFromJID(jid string) string {
	user := jid
	if i := strings.IndexByte(user, '@'); i >= 0 {
		user = user[:i]
	}
	if i := strings.IndexByte(user, ':'); i >= 0 {
		user = user[:i]
	}
	return user
}

// IsGroupJID reports whether the JID addresses a group chat
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@g.us")
}

// JIDFromNumber builds a user JID from a phone number
func JIDFromNumber(number string) string {
	return number + "@s.whatsapp.net"
}
