package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"whatsapp-panel-server/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSubscriber struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (r *recordingSubscriber) ID() string { return r.id }

func (r *recordingSubscriber) Send(p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, p)
	return nil
}

func TestMain(m *testing.M) {
	logger.SetTestMode(true)
	m.Run()
}

func TestHub_PublishIsPerUser(t *testing.T) {
	hub := NewHub()
	a := &recordingSubscriber{id: "a"}
	b := &recordingSubscriber{id: "b"}
	other := &recordingSubscriber{id: "c"}

	hub.Subscribe("user-1", a)
	hub.Subscribe("user-1", b)
	hub.Subscribe("user-2", other)
	assert.Equal(t, 2, hub.Subscribers("user-1"))

	hub.Publish("user-1", EventMessageNew, map[string]string{"body": "hi"})

	require.Len(t, a.frames, 1)
	require.Len(t, b.frames, 1)
	assert.Empty(t, other.frames)

	var event struct {
		Type    string            `json:"type"`
		Payload map[string]string `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(a.frames[0], &event))
	assert.Equal(t, EventMessageNew, event.Type)
	assert.Equal(t, "hi", event.Payload["body"])
}

func TestHub_FailingSubscriberIsDropped(t *testing.T) {
	hub := NewHub()
	broken := &recordingSubscriber{id: "broken", err: errors.New("gone")}
	hub.Subscribe("user-1", broken)

	hub.Publish("user-1", EventConnectionUpdate, nil)
	assert.Equal(t, 0, hub.Subscribers("user-1"))

	hub.Unsubscribe("user-1", broken)
	hub.Publish("nobody", EventScheduledUpdate, nil)
}

func TestConnection_DeliversFrames(t *testing.T) {
	hub := NewHub()
	upgrader := websocket.Upgrader{}
	registered := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		conn := NewConnection("user-1", ws)
		hub.Subscribe("user-1", conn)
		close(registered)
		conn.Run()
		hub.Unsubscribe("user-1", conn)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	select {
	case <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not registered")
	}

	hub.Publish("user-1", EventMessageNew, map[string]string{"id": "m1"})

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"message.new"`)
	assert.Contains(t, string(data), `"id":"m1"`)
}
