// Package realtime fans out per-user events to connected websocket clients.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"whatsapp-panel-server/pkg/logger"

	"go.uber.org/zap"
)

// Event types pushed to the panel
const (
	EventMessageNew       = "message.new"
	EventConnectionUpdate = "connection.update"
	EventScheduledUpdate  = "scheduled.update"
)

// Event is the JSON frame sent to subscribers
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	At      time.Time   `json:"at"`
}

// Subscriber receives encoded frames
type Subscriber interface {
	ID() string
	Send(payload []byte) error
}

// Hub keeps the subscribers of every user
type Hub struct {
	mu    sync.RWMutex
	users map[string]map[string]Subscriber
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{users: make(map[string]map[string]Subscriber)}
}

// Subscribe registers s for userID's events
func (h *Hub) Subscribe(userID string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.users[userID]
	if !ok {
		set = make(map[string]Subscriber)
		h.users[userID] = set
	}
	set[s.ID()] = s
}

// Unsubscribe removes s; the user entry goes away with its last subscriber
func (h *Hub) Unsubscribe(userID string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.users[userID]
	if !ok {
		return
	}
	delete(set, s.ID())
	if len(set) == 0 {
		delete(h.users, userID)
	}
}

// Subscribers returns how many subscribers userID has
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// Publish delivers an event to every subscriber of userID.
// Delivery is best effort; slow subscribers drop themselves.
func (h *Hub) Publish(userID, eventType string, payload interface{}) {
	frame, err := json.Marshal(Event{Type: eventType, Payload: payload, At: time.Now().UTC()})
	if err != nil {
		logger.Error("Failed to encode realtime event", zap.String("type", eventType), zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.users[userID]))
	for _, s := range h.users[userID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if err := s.Send(frame); err != nil {
			logger.Debug("Realtime delivery failed",
				zap.String("user_id", userID),
				zap.String("subscriber_id", s.ID()),
				zap.Error(err),
			)
			h.Unsubscribe(userID, s)
		}
	}
}
