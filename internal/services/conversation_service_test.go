package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"whatsapp-panel-server/internal/db"
	"whatsapp-panel-server/internal/models"
	"whatsapp-panel-server/internal/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type conversationEnv struct {
	db        *db.Database
	service   *ConversationService
	gateway   *mockGateway
	publisher *recordingPublisher
	conn      *models.Connection
	conv      *models.Conversation
}

func setupTestConversationService(t *testing.T) *conversationEnv {
	database := db.SetupTestDB(t)
	db.SeedProfile(t, database, "user-1")
	conn := createConnection(t, database, "user-1", "inst-1", models.ConnectionConnected)

	conversations := db.NewConversationRepository(database)
	conv, _, err := conversations.GetOrCreate(context.Background(), "user-1", conn.ID, "5511999990000@s.whatsapp.net", "5511999990000", "Ana")
	require.NoError(t, err)

	gateway := &mockGateway{}
	publisher := &recordingPublisher{}
	service := NewConversationService(
		conversations,
		db.NewConnectionRepository(database),
		NewOutboundRecorder(conversations, publisher),
		gateway,
		NewLogService(db.NewLogRepository(database)),
	)
	return &conversationEnv{db: database, service: service, gateway: gateway, publisher: publisher, conn: conn, conv: conv}
}

func TestConversationService_SendMessage(t *testing.T) {
	env := setupTestConversationService(t)
	ctx := context.Background()

	env.gateway.On("SendText", mock.Anything, "inst-1", "5511999990000", "Your order shipped").
		Return(sentResult("wa-9"), nil).Once()

	msg, err := env.service.SendMessage(ctx, "user-1", env.conv.ID, "  Your order shipped ")
	require.NoError(t, err)
	assert.Equal(t, models.SourceManual, msg.Source)
	assert.Equal(t, models.DirectionOutbound, msg.Direction)
	assert.Equal(t, "wa-9", msg.ExternalID)

	msgs, err := env.service.Messages(ctx, "user-1", env.conv.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	events := env.publisher.ofType(realtime.EventMessageNew)
	require.Len(t, events, 1)
	assert.Equal(t, env.conv.ID, events[0].Payload.(MessageEvent).ConversationID)
	env.gateway.AssertExpectations(t)
}

func TestConversationService_SendMessageErrors(t *testing.T) {
	env := setupTestConversationService(t)
	ctx := context.Background()

	_, err := env.service.SendMessage(ctx, "user-1", env.conv.ID, "  ")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.service.SendMessage(ctx, "user-1", env.conv.ID, strings.Repeat("x", MaxMessageLength+1))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.service.SendMessage(ctx, "user-2", env.conv.ID, "hi")
	assert.ErrorIs(t, err, ErrNotFound)

	env.gateway.On("SendText", mock.Anything, "inst-1", "5511999990000", "hi").
		Return(nil, errors.New("gateway down")).Once()
	_, err = env.service.SendMessage(ctx, "user-1", env.conv.ID, "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway down")

	require.NoError(t, db.NewConnectionRepository(env.db).UpdateStatus(ctx, env.conn.ID, models.ConnectionDisconnected, ""))
	_, err = env.service.SendMessage(ctx, "user-1", env.conv.ID, "hi")
	assert.ErrorIs(t, err, ErrConnectionNotReady)

	msgs, err := env.service.Messages(ctx, "user-1", env.conv.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestConversationService_ListMarkReadDelete(t *testing.T) {
	env := setupTestConversationService(t)
	ctx := context.Background()
	repo := db.NewConversationRepository(env.db)

	require.NoError(t, repo.AddMessage(ctx, &models.Message{
		ConversationID: env.conv.ID,
		UserID:         "user-1",
		ExternalID:     "in-1",
		Direction:      models.DirectionInbound,
		Source:         models.SourceContact,
		Body:           "hello",
	}))

	list, err := env.service.List(ctx, "user-1", "", 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].UnreadCount)

	byConn, err := env.service.List(ctx, "user-1", "other-connection", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, byConn)

	require.NoError(t, env.service.MarkRead(ctx, "user-1", env.conv.ID))
	conv, err := repo.GetByID(ctx, "user-1", env.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UnreadCount)

	_, err = env.service.Messages(ctx, "user-2", env.conv.ID, 0, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, env.service.Delete(ctx, "user-1", env.conv.ID))
	assert.ErrorIs(t, env.service.Delete(ctx, "user-1", env.conv.ID), ErrNotFound)
}
