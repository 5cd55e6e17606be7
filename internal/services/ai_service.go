package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"whatsapp-panel-server/internal/db"
	"whatsapp-panel-server/internal/models"
	"whatsapp-panel-server/pkg/gemini"
)

const (
	// HistoryTurns is how many earlier chat messages are sent with each prompt
	HistoryTurns = 20

	// DefaultChatTitle names chats created without a title
	DefaultChatTitle = "New chat"

	panelAssistantPrompt = "You are the assistant of a WhatsApp business panel. " +
		"Help the user write messages, plan automations and schedule campaigns. " +
		"Answer in the language of the question and keep answers concise."
)

var (
	// ErrAINotConfigured is returned when no model is available
	ErrAINotConfigured = errors.New("AI assistant is not configured")

	// ErrEmptyCompletion is returned when the model answered with no text
	ErrEmptyCompletion = gemini.ErrEmptyCompletion
)

// AIService runs assistant chats and produces replies for ai automations
type AIService struct {
	chats     db.AIChatRepository
	completer Completer
	logs      *LogService
}

// NewAIService creates a new AIService; a nil completer disables generation
func NewAIService(chats db.AIChatRepository, completer Completer, logs *LogService) *AIService {
	return &AIService{chats: chats, completer: completer, logs: logs}
}

// CreateChat opens a new assistant chat
func (s *AIService) CreateChat(ctx context.Context, userID, title string) (*models.AIChat, error) {
	chat := &models.AIChat{
		UserID: userID,
		Title:  defaultString(strings.TrimSpace(title), DefaultChatTitle),
	}
	if err := s.chats.CreateChat(ctx, chat); err != nil {
		return nil, err
	}
	s.logs.Activity(ctx, userID, "ai_chat.created", "ai_chat", chat.ID, nil)
	return chat, nil
}

// ListChats returns the user's chats, most recently active first
func (s *AIService) ListChats(ctx context.Context, userID string) ([]*models.AIChat, error) {
	return s.chats.ListChats(ctx, userID)
}

// DeleteChat removes a chat and its messages
func (s *AIService) DeleteChat(ctx context.Context, userID, chatID string) error {
	if err := s.chats.DeleteChat(ctx, userID, chatID); err != nil {
		return err
	}
	s.logs.Activity(ctx, userID, "ai_chat.deleted", "ai_chat", chatID, nil)
	return nil
}

// Messages returns the messages of a chat in chronological order
func (s *AIService) Messages(ctx context.Context, userID, chatID string) ([]*models.AIMessage, error) {
	if _, err := s.chats.GetChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	return s.chats.ListMessages(ctx, chatID, 0)
}

// SendMessage stores a prompt, asks the model with the recent history and
// stores the answer. The prompt is kept even when generation fails.
func (s *AIService) SendMessage(ctx context.Context, userID, chatID, content string) (*models.AIMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, validationError("content is required")
	}
	if s.completer == nil {
		return nil, ErrAINotConfigured
	}
	if _, err := s.chats.GetChat(ctx, userID, chatID); err != nil {
		return nil, err
	}

	previous, err := s.chats.ListMessages(ctx, chatID, HistoryTurns)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}

	prompt := &models.AIMessage{ChatID: chatID, Role: models.RoleUser, Content: content}
	if err := s.chats.AddMessage(ctx, prompt); err != nil {
		return nil, err
	}

	answer, err := s.completer.Generate(ctx, panelAssistantPrompt, toTurns(previous), content)
	if err != nil {
		s.logs.System(ctx, models.LevelError, "ai", "Assistant completion failed", userID, map[string]interface{}{
			"chat_id": chatID,
			"error":   err.Error(),
		})
		return nil, fmt.Errorf("failed to generate reply: %w", err)
	}

	reply := &models.AIMessage{ChatID: chatID, Role: models.RoleAssistant, Content: answer}
	if err := s.chats.AddMessage(ctx, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// Reply answers a contact message with systemPrompt as instructions
func (s *AIService) Reply(ctx context.Context, systemPrompt, userText string) (string, error) {
	if s.completer == nil {
		return "", ErrAINotConfigured
	}
	return s.completer.Generate(ctx, systemPrompt, nil, userText)
}

func toTurns(msgs []*models.AIMessage) []gemini.Turn {
	turns := make([]gemini.Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, gemini.Turn{Role: m.Role, Text: m.Content})
	}
	return turns
}
