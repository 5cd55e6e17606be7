package models

import "time"

// Trigger types
const (
	TriggerKeyword      = "keyword"
	TriggerAnyMessage   = "any_message"
	TriggerFirstMessage = "first_message"
)

// Keyword match types
const (
	MatchExact      = "exact"
	MatchContains   = "contains"
	MatchStartsWith = "starts_with"
)

// Response types
const (
	ResponseText = "text"
	ResponseAI   = "ai"
)

// Automation is a user-defined auto-reply rule
type Automation struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	// ConnectionID restricts the rule to one connection; nil applies to all
	ConnectionID *string   `json:"connection_id,omitempty"`
	Name         string    `json:"name"`
	TriggerType  string    `json:"trigger_type"`
	Keywords     []string  `json:"keywords"`
	MatchType    string    `json:"match_type"`
	ResponseType string    `json:"response_type"`
	ResponseText string    `json:"response_text"`
	IsActive     bool      `json:"is_active"`
	TriggerCount int       `json:"trigger_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AppliesTo reports whether the rule covers the given connection
func (a *Automation) AppliesTo(connectionID string) bool {
	return a.ConnectionID == nil || *a.ConnectionID == "" || *a.ConnectionID == connectionID
}

// AutomationRequest is the create/update body for automations
type AutomationRequest struct {
	ConnectionID *string  `json:"connection_id"`
	Name         string   `json:"name"`
	TriggerType  string   `json:"trigger_type"`
	Keywords     []string `json:"keywords"`
	MatchType    string   `json:"match_type"`
	ResponseType string   `json:"response_type"`
	ResponseText string   `json:"response_text"`
	IsActive     *bool    `json:"is_active"`
}
