package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"whatsapp-panel-server/internal/db"
	"whatsapp-panel-server/internal/models"
	"whatsapp-panel-server/pkg/gemini"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupTestAIService(t *testing.T, completer Completer) (*db.Database, *AIService) {
	database := db.SetupTestDB(t)
	db.SeedProfile(t, database, "user-1")
	service := NewAIService(db.NewAIChatRepository(database), completer, NewLogService(db.NewLogRepository(database)))
	return database, service
}

func TestAIService_Chats(t *testing.T) {
	_, service := setupTestAIService(t, nil)
	ctx := context.Background()

	untitled, err := service.CreateChat(ctx, "user-1", "  ")
	require.NoError(t, err)
	assert.Equal(t, DefaultChatTitle, untitled.Title)

	named, err := service.CreateChat(ctx, "user-1", "Campaign ideas")
	require.NoError(t, err)

	chats, err := service.ListChats(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, chats, 2)

	_, err = service.Messages(ctx, "user-2", named.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, service.DeleteChat(ctx, "user-1", named.ID))
	assert.ErrorIs(t, service.DeleteChat(ctx, "user-1", named.ID), ErrNotFound)
}

func TestAIService_SendMessage(t *testing.T) {
	completer := &mockCompleter{}
	_, service := setupTestAIService(t, completer)
	ctx := context.Background()

	chat, err := service.CreateChat(ctx, "user-1", "")
	require.NoError(t, err)

	completer.On("Generate", mock.Anything, panelAssistantPrompt, []gemini.Turn{}, "Write a greeting").
		Return("Hello and welcome!", nil).Once()
	reply, err := service.SendMessage(ctx, "user-1", chat.ID, "Write a greeting")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAssistant, reply.Role)
	assert.Equal(t, "Hello and welcome!", reply.Content)

	history := []gemini.Turn{
		{Role: models.RoleUser, Text: "Write a greeting"},
		{Role: models.RoleAssistant, Text: "Hello and welcome!"},
	}
	completer.On("Generate", mock.Anything, panelAssistantPrompt, history, "Shorter").
		Return("Welcome!", nil).Once()
	_, err = service.SendMessage(ctx, "user-1", chat.ID, "Shorter")
	require.NoError(t, err)

	msgs, err := service.Messages(ctx, "user-1", chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "Write a greeting", msgs[0].Content)
	assert.Equal(t, "Welcome!", msgs[3].Content)
	completer.AssertExpectations(t)
}

func TestAIService_SendMessage_HistoryWindow(t *testing.T) {
	completer := &mockCompleter{}
	database, service := setupTestAIService(t, completer)
	ctx := context.Background()

	chat, err := service.CreateChat(ctx, "user-1", "")
	require.NoError(t, err)
	repo := db.NewAIChatRepository(database)
	for i := 0; i < HistoryTurns+5; i++ {
		require.NoError(t, repo.AddMessage(ctx, &models.AIMessage{ChatID: chat.ID, Role: models.RoleUser, Content: fmt.Sprintf("m%d", i)}))
	}

	completer.On("Generate", mock.Anything, mock.Anything, mock.MatchedBy(func(h []gemini.Turn) bool {
		return len(h) == HistoryTurns && h[len(h)-1].Text == fmt.Sprintf("m%d", HistoryTurns+4)
	}), "next").Return("ok", nil).Once()

	_, err = service.SendMessage(ctx, "user-1", chat.ID, "next")
	require.NoError(t, err)
	completer.AssertExpectations(t)
}

func TestAIService_SendMessageErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("not configured", func(t *testing.T) {
		_, service := setupTestAIService(t, nil)
		chat, err := service.CreateChat(ctx, "user-1", "")
		require.NoError(t, err)
		_, err = service.SendMessage(ctx, "user-1", chat.ID, "hi")
		assert.ErrorIs(t, err, ErrAINotConfigured)

		_, err = service.Reply(ctx, "system", "hi")
		assert.ErrorIs(t, err, ErrAINotConfigured)
	})

	t.Run("empty content", func(t *testing.T) {
		_, service := setupTestAIService(t, &mockCompleter{})
		_, err := service.SendMessage(ctx, "user-1", "chat", " ")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("unknown chat", func(t *testing.T) {
		_, service := setupTestAIService(t, &mockCompleter{})
		_, err := service.SendMessage(ctx, "user-1", "missing", "hi")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("model failure keeps the prompt", func(t *testing.T) {
		completer := &mockCompleter{}
		database, service := setupTestAIService(t, completer)
		chat, err := service.CreateChat(ctx, "user-1", "")
		require.NoError(t, err)

		completer.On("Generate", mock.Anything, mock.Anything, mock.Anything, "hi").
			Return("", gemini.ErrEmptyCompletion).Once()
		_, err = service.SendMessage(ctx, "user-1", chat.ID, "hi")
		assert.ErrorIs(t, err, ErrEmptyCompletion)

		msgs, err := service.Messages(ctx, "user-1", chat.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, models.RoleUser, msgs[0].Role)

		logs, err := db.NewLogRepository(database).ListSystemLogs(ctx, models.LevelError, 10, 0)
		require.NoError(t, err)
		assert.Len(t, logs, 1)
	})
}

func TestAIService_Reply(t *testing.T) {
	completer := &mockCompleter{}
	_, service := setupTestAIService(t, completer)

	completer.On("Generate", mock.Anything, "You sell shoes", []gemini.Turn(nil), "size 42?").
		Return("Yes", nil).Once()
	got, err := service.Reply(context.Background(), "You sell shoes", "size 42?")
	require.NoError(t, err)
	assert.Equal(t, "Yes", got)

	completer.On("Generate", mock.Anything, "x", []gemini.Turn(nil), "y").
		Return("", errors.New("quota exceeded")).Once()
	_, err = service.Reply(context.Background(), "x", "y")
	assert.EqualError(t, err, "quota exceeded")
}
