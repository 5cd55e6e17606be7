package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"whatsapp-panel-server/internal/db"
	"whatsapp-panel-server/internal/metrics"
	"whatsapp-panel-server/internal/models"
	"whatsapp-panel-server/pkg/logger"

	"go.uber.org/zap"
)

const (
	// MaxAutomationNameLength bounds automation names
	MaxAutomationNameLength = 100

	// MaxKeywords bounds the keyword list of a rule
	MaxKeywords = 50
)

// Replier produces AI replies for automations; AIService implements it
type Replier interface {
	Reply(ctx context.Context, systemPrompt, userText string) (string, error)
}

// AutomationService manages auto-reply rules and runs them on inbound messages
type AutomationService struct {
	repo        db.AutomationRepository
	connections db.ConnectionRepository
	outbound    *OutboundRecorder
	gateway     Gateway
	replier     Replier
	logs        *LogService
}

// NewAutomationService creates a new AutomationService
func NewAutomationService(repo db.AutomationRepository, connections db.ConnectionRepository, outbound *OutboundRecorder, gateway Gateway, replier Replier, logs *LogService) *AutomationService {
	return &AutomationService{
		repo:        repo,
		connections: connections,
		outbound:    outbound,
		gateway:     gateway,
		replier:     replier,
		logs:        logs,
	}
}

// NormalizeText trims, lower-cases and collapses inner whitespace
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Match returns the first rule in list order that fires for text, or nil.
// isFirstMessage reports whether text opened a new conversation.
func Match(rules []*models.Automation, text string, isFirstMessage bool) *models.Automation {
	normalized := NormalizeText(text)
	for _, rule := range rules {
		if rule == nil || !rule.IsActive {
			continue
		}
		switch rule.TriggerType {
		case models.TriggerAnyMessage:
			return rule
		case models.TriggerFirstMessage:
			if isFirstMessage {
				return rule
			}
		case models.TriggerKeyword:
			if matchKeywords(rule, normalized) {
				return rule
			}
		}
	}
	return nil
}

func matchKeywords(rule *models.Automation, normalized string) bool {
	if normalized == "" {
		return false
	}
	for _, kw := range rule.Keywords {
		kw = NormalizeText(kw)
		if kw == "" {
			continue
		}
		switch rule.MatchType {
		case models.MatchExact:
			if normalized == kw {
				return true
			}
		case models.MatchStartsWith:
			if strings.HasPrefix(normalized, kw) {
				return true
			}
		default:
			if strings.Contains(normalized, kw) {
				return true
			}
		}
	}
	return false
}

// HandleInbound runs the owner's active rules against an inbound message and
// sends the reply of the first match. It returns the stored reply, or nil
// when no rule fired.
func (s *AutomationService) HandleInbound(ctx context.Context, conn *models.Connection, conv *models.Conversation, msg *models.Message, isFirstMessage bool) (*models.Message, error) {
	active, err := s.repo.ListActive(ctx, conn.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load automations: %w", err)
	}

	rules := make([]*models.Automation, 0, len(active))
	for _, a := range active {
		if a.AppliesTo(conn.ID) {
			rules = append(rules, a)
		}
	}

	rule := Match(rules, msg.Body, isFirstMessage)
	if rule == nil {
		return nil, nil
	}

	reply, err := s.render(ctx, rule, msg.Body)
	if err != nil {
		return nil, fmt.Errorf("automation %s: %w", rule.ID, err)
	}

	sent, err := s.gateway.SendText(ctx, conn.InstanceName, conv.PhoneNumber, reply)
	if err != nil {
		return nil, fmt.Errorf("automation %s: failed to send reply: %w", rule.ID, err)
	}

	stored, err := s.outbound.Record(ctx, conv, reply, models.SourceAutomation, sent.Key.ID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.IncrementTriggerCount(ctx, rule.ID); err != nil {
		logger.Warn("Failed to increment automation trigger count",
			zap.String("automation_id", rule.ID),
			zap.Error(err),
		)
	}
	metrics.AutomationTriggers.WithLabelValues(rule.ResponseType).Inc()

	s.logs.Activity(ctx, conn.UserID, "automation.triggered", "automation", rule.ID, map[string]interface{}{
		"conversation_id": conv.ID,
		"response_type":   rule.ResponseType,
	})
	logger.Info("Automation triggered",
		zap.String("automation_id", rule.ID),
		zap.String("conversation_id", conv.ID),
		zap.String("event_type", "automation_triggered"),
	)

	return stored, nil
}

func (s *AutomationService) render(ctx context.Context, rule *models.Automation, inbound string) (string, error) {
	if rule.ResponseType != models.ResponseAI {
		return rule.ResponseText, nil
	}
	if s.replier == nil {
		return "", ErrAINotConfigured
	}
	return s.replier.Reply(ctx, rule.ResponseText, inbound)
}

// List returns every rule of a user
func (s *AutomationService) List(ctx context.Context, userID string) ([]*models.Automation, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Get returns one rule of a user
func (s *AutomationService) Get(ctx context.Context, userID, id string) (*models.Automation, error) {
	return s.repo.GetByID(ctx, userID, id)
}

// Create validates and stores a new rule
func (s *AutomationService) Create(ctx context.Context, userID string, req *models.AutomationRequest) (*models.Automation, error) {
	a := &models.Automation{UserID: userID, IsActive: true}
	if err := s.apply(ctx, a, req); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	s.logs.Activity(ctx, userID, "automation.created", "automation", a.ID, map[string]interface{}{"name": a.Name})
	return a, nil
}

// Update validates and replaces a rule
func (s *AutomationService) Update(ctx context.Context, userID, id string, req *models.AutomationRequest) (*models.Automation, error) {
	a, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, a, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	s.logs.Activity(ctx, userID, "automation.updated", "automation", a.ID, nil)
	return a, nil
}

// Delete removes a rule
func (s *AutomationService) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.logs.Activity(ctx, userID, "automation.deleted", "automation", id, nil)
	return nil
}

// apply validates req and copies it onto a, filling defaults
func (s *AutomationService) apply(ctx context.Context, a *models.Automation, req *models.AutomationRequest) error {
	if req == nil {
		return validationError("request body is required")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return validationError("name is required")
	}
	if len(name) > MaxAutomationNameLength {
		return validationError(fmt.Sprintf("name must be at most %d characters", MaxAutomationNameLength))
	}

	trigger := defaultString(req.TriggerType, models.TriggerKeyword)
	switch trigger {
	case models.TriggerKeyword, models.TriggerAnyMessage, models.TriggerFirstMessage:
	default:
		return validationError(fmt.Sprintf("unknown trigger type %q", trigger))
	}

	matchType := defaultString(req.MatchType, models.MatchContains)
	switch matchType {
	case models.MatchExact, models.MatchContains, models.MatchStartsWith:
	default:
		return validationError(fmt.Sprintf("unknown match type %q", matchType))
	}

	responseType := defaultString(req.ResponseType, models.ResponseText)
	switch responseType {
	case models.ResponseText, models.ResponseAI:
	default:
		return validationError(fmt.Sprintf("unknown response type %q", responseType))
	}

	keywords := make([]string, 0, len(req.Keywords))
	for _, kw := range req.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if trigger == models.TriggerKeyword && len(keywords) == 0 {
		return validationError("at least one keyword is required")
	}
	if len(keywords) > MaxKeywords {
		return validationError(fmt.Sprintf("at most %d keywords are allowed", MaxKeywords))
	}

	responseText := strings.TrimSpace(req.ResponseText)
	if responseType == models.ResponseText && responseText == "" {
		return validationError("response text is required")
	}

	var connectionID *string
	if req.ConnectionID != nil && *req.ConnectionID != "" {
		if _, err := s.connections.GetByID(ctx, a.UserID, *req.ConnectionID); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return validationError("connection not found")
			}
			return err
		}
		id := *req.ConnectionID
		connectionID = &id
	}

	a.Name = name
	a.ConnectionID = connectionID
	a.TriggerType = trigger
	a.Keywords = keywords
	a.MatchType = matchType
	a.ResponseType = responseType
	a.ResponseText = responseText
	if req.IsActive != nil {
		a.IsActive = *req.IsActive
	}
	return nil
}

func defaultString(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
