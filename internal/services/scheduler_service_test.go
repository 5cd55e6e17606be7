package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"whatsapp-panel-server/internal/db"
	"whatsapp-panel-server/internal/models"
	"whatsapp-panel-server/internal/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type schedulerEnv struct {
	db        *db.Database
	repo      db.ScheduledMessageRepository
	service   *SchedulerService
	gateway   *mockGateway
	notifier  *mockNotifier
	publisher *recordingPublisher
	conn      *models.Connection
	now       time.Time
}

func setupTestSchedulerService(t *testing.T) *schedulerEnv {
	database := db.SetupTestDB(t)
	db.SeedProfile(t, database, "user-1")
	conn := createConnection(t, database, "user-1", "inst-1", models.ConnectionConnected)

	gateway := &mockGateway{}
	notifier := &mockNotifier{}
	publisher := &recordingPublisher{}
	repo := db.NewScheduledMessageRepository(database)
	conversations := db.NewConversationRepository(database)

	service := NewSchedulerService(
		repo,
		db.NewConnectionRepository(database),
		NewProfileService(db.NewProfileRepository(database)),
		NewOutboundRecorder(conversations, publisher),
		gateway,
		notifier,
		publisher,
		NewLogService(db.NewLogRepository(database)),
		SchedulerConfig{},
	)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	return &schedulerEnv{
		db:        database,
		repo:      repo,
		service:   service,
		gateway:   gateway,
		notifier:  notifier,
		publisher: publisher,
		conn:      conn,
		now:       now,
	}
}

// queue stores a pending message directly, bypassing the future-time check
func (e *schedulerEnv) queue(t *testing.T, at time.Time, recurrence string, retries int) *models.ScheduledMessage {
	t.Helper()
	m := &models.ScheduledMessage{
		UserID:       "user-1",
		ConnectionID: e.conn.ID,
		PhoneNumber:  "5511999990000",
		Message:      "Reminder: your appointment is tomorrow",
		ScheduledFor: at,
		Recurrence:   recurrence,
		RetryCount:   retries,
	}
	require.NoError(t, e.repo.Create(context.Background(), m))
	return m
}

func (e *schedulerEnv) reload(t *testing.T, id string) *models.ScheduledMessage {
	t.Helper()
	m, err := e.repo.GetByID(context.Background(), "user-1", id)
	require.NoError(t, err)
	return m
}

func TestNext(t *testing.T) {
	base := time.Date(2026, 1, 31, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name       string
		recurrence string
		want       time.Time
		ok         bool
	}{
		{"daily", models.RecurrenceDaily, time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC), true},
		{"weekly", models.RecurrenceWeekly, time.Date(2026, 2, 7, 9, 30, 0, 0, time.UTC), true},
		{"monthly normalises overflow", models.RecurrenceMonthly, time.Date(2026, 3, 3, 9, 30, 0, 0, time.UTC), true},
		{"none", models.RecurrenceNone, base, false},
		{"unknown", "yearly", base, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Next(base, tt.recurrence)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestNextAfter_SkipsMissedOccurrences(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	got := nextAfter(start, models.RecurrenceDaily, now)
	assert.True(t, time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC).Equal(got))

	exact := nextAfter(start, models.RecurrenceDaily, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	assert.True(t, time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC).Equal(exact), "next must be strictly after now")
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+55 (11) 99999-0000", "5511999990000", false},
		{"12345678", "12345678", false},
		{"1234567", "", true},
		{"1234567890123456", "", true},
		{"55 11 abc", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizePhone(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSchedulerService_ProcessDue_OneOffSent(t *testing.T) {
	env := setupTestSchedulerService(t)
	ctx := context.Background()

	due := env.queue(t, env.now.Add(-time.Minute), models.RecurrenceNone, 0)
	future := env.queue(t, env.now.Add(time.Hour), models.RecurrenceNone, 0)

	env.gateway.On("SendText", mock.Anything, "inst-1", "5511999990000", due.Message).
		Return(sentResult("wa-1"), nil).Once()

	res, err := env.service.ProcessDue(ctx, env.now)
	require.NoError(t, err)
	assert.Equal(t, &models.DispatchResult{Processed: 1, Sent: 1}, res)

	sent := env.reload(t, due.ID)
	assert.Equal(t, models.ScheduledSent, sent.Status)
	require.NotNil(t, sent.SentAt)
	assert.True(t, env.now.Equal(*sent.SentAt))

	assert.Equal(t, models.ScheduledPending, env.reload(t, future.ID).Status)

	convs, err := db.NewConversationRepository(env.db).ListByUser(ctx, "user-1", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "5511999990000", convs[0].PhoneNumber)

	msgs, err := db.NewConversationRepository(env.db).ListMessages(ctx, "user-1", convs[0].ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.SourceScheduled, msgs[0].Source)
	assert.Equal(t, "wa-1", msgs[0].ExternalID)

	assert.Len(t, env.publisher.ofType(realtime.EventScheduledUpdate), 1)
	assert.Len(t, env.publisher.ofType(realtime.EventMessageNew), 1)
	env.gateway.AssertExpectations(t)
}

func TestSchedulerService_ProcessDue_RecurringRearms(t *testing.T) {
	env := setupTestSchedulerService(t)

	// three days behind: the next occurrence must land after now
	m := env.queue(t, env.now.Add(-72*time.Hour+time.Minute), models.RecurrenceDaily, 1)

	env.gateway.On("SendText", mock.Anything, "inst-1", "5511999990000", m.Message).
		Return(sentResult("wa-2"), nil).Once()

	res, err := env.service.ProcessDue(context.Background(), env.now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)

	rearmed := env.reload(t, m.ID)
	assert.Equal(t, models.ScheduledPending, rearmed.Status)
	assert.Equal(t, 0, rearmed.RetryCount)
	assert.True(t, env.now.Add(time.Minute).Equal(rearmed.ScheduledFor), "got %s", rearmed.ScheduledFor)
	require.NotNil(t, rearmed.SentAt)
}

func TestSchedulerService_ProcessDue_RetriedRecurringKeepsTimeOfDay(t *testing.T) {
	env := setupTestSchedulerService(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := env.queue(t, at, models.RecurrenceDaily, 0)

	env.gateway.On("SendText", mock.Anything, "inst-1", "5511999990000", m.Message).
		Return(nil, errors.New("gateway timeout")).Once()
	env.gateway.On("SendText", mock.Anything, "inst-1", "5511999990000", m.Message).
		Return(sentResult("wa-3"), nil).Once()

	res, err := env.service.ProcessDue(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retried)

	res, err = env.service.ProcessDue(ctx, at.Add(DefaultRetryDelay))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)

	rearmed := env.reload(t, m.ID)
	assert.Equal(t, models.ScheduledPending, rearmed.Status)
	assert.Equal(t, 0, rearmed.RetryCount)
	assert.Nil(t, rearmed.NextAttemptAt)
	assert.True(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC).Equal(rearmed.ScheduledFor), "got %s", rearmed.ScheduledFor)
	env.gateway.AssertExpectations(t)
}

func TestSchedulerService_ProcessDue_RetryThenFail(t *testing.T) {
	env := setupTestSchedulerService(t)
	ctx := context.Background()

	m := env.queue(t, env.now.Add(-time.Minute), models.RecurrenceNone, 0)
	env.gateway.On("SendText", mock.Anything, "inst-1", "5511999990000", m.Message).
		Return(nil, errors.New("gateway timeout"))

	res, err := env.service.ProcessDue(ctx, env.now)
	require.NoError(t, err)
	assert.Equal(t, &models.DispatchResult{Processed: 1, Retried: 1}, res)

	retried := env.reload(t, m.ID)
	assert.Equal(t, models.ScheduledPending, retried.Status)
	assert.Equal(t, 1, retried.RetryCount)
	assert.Equal(t, "gateway timeout", retried.LastError)
	assert.True(t, m.ScheduledFor.Equal(retried.ScheduledFor))
	require.NotNil(t, retried.NextAttemptAt)
	assert.True(t, env.now.Add(DefaultRetryDelay).Equal(*retried.NextAttemptAt))

	// not yet due again
	res, err = env.service.ProcessDue(ctx, env.now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)

	second := env.now.Add(DefaultRetryDelay)
	res, err = env.service.ProcessDue(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retried)
	assert.Equal(t, 2, env.reload(t, m.ID).RetryCount)

	env.notifier.On("Enabled").Return(true)
	env.notifier.On("Send", mock.Anything, "user-1@example.com", mock.Anything, mock.Anything, mock.Anything).
		Return("email-1", nil).Once()

	res, err = env.service.ProcessDue(ctx, second.Add(DefaultRetryDelay))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	failed := env.reload(t, m.ID)
	assert.Equal(t, models.ScheduledFailed, failed.Status)
	assert.Equal(t, DefaultMaxAttempts, failed.RetryCount)
	assert.Nil(t, failed.SentAt)

	logs, err := db.NewLogRepository(env.db).ListSystemLogs(ctx, models.LevelError, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "scheduler", logs[0].Source)

	env.notifier.AssertExpectations(t)
	env.gateway.AssertNumberOfCalls(t, "SendText", 3)
}

func TestSchedulerService_ProcessDue_DisconnectedCountsAsFailure(t *testing.T) {
	env := setupTestSchedulerService(t)
	ctx := context.Background()

	require.NoError(t, db.NewConnectionRepository(env.db).UpdateStatus(ctx, env.conn.ID, models.ConnectionDisconnected, ""))
	m := env.queue(t, env.now.Add(-time.Minute), models.RecurrenceNone, DefaultMaxAttempts-1)

	env.notifier.On("Enabled").Return(false)

	res, err := env.service.ProcessDue(ctx, env.now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	failed := env.reload(t, m.ID)
	assert.Equal(t, models.ScheduledFailed, failed.Status)
	assert.Contains(t, failed.LastError, "not connected")
	env.gateway.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	env.notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSchedulerService_ProcessDue_Concurrent(t *testing.T) {
	env := setupTestSchedulerService(t)

	env.service.mu.Lock()
	_, err := env.service.ProcessDue(context.Background(), env.now)
	env.service.mu.Unlock()
	assert.ErrorIs(t, err, ErrDispatchInProgress)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.service.ProcessDue(context.Background(), env.now)
			if err != nil {
				assert.ErrorIs(t, err, ErrDispatchInProgress)
			}
		}()
	}
	wg.Wait()
}

func TestSchedulerService_CreateValidation(t *testing.T) {
	env := setupTestSchedulerService(t)
	ctx := context.Background()
	future := env.now.Add(time.Hour)

	valid := func() *models.ScheduledMessageRequest {
		return &models.ScheduledMessageRequest{
			ConnectionID: env.conn.ID,
			PhoneNumber:  "+55 11 99999-0000",
			Message:      "Hello",
			ScheduledFor: future,
		}
	}

	tests := []struct {
		name        string
		mutate      func(r *models.ScheduledMessageRequest)
		errContains string
	}{
		{"short phone", func(r *models.ScheduledMessageRequest) { r.PhoneNumber = "123" }, "phone number"},
		{"empty message", func(r *models.ScheduledMessageRequest) { r.Message = "  " }, "message is required"},
		{"past time", func(r *models.ScheduledMessageRequest) { r.ScheduledFor = env.now.Add(-time.Second) }, "future"},
		{"missing time", func(r *models.ScheduledMessageRequest) { r.ScheduledFor = time.Time{} }, "scheduled_for is required"},
		{"unknown recurrence", func(r *models.ScheduledMessageRequest) { r.Recurrence = "hourly" }, "recurrence"},
		{"unknown connection", func(r *models.ScheduledMessageRequest) { r.ConnectionID = "nope" }, "connection not found"},
		{"missing connection", func(r *models.ScheduledMessageRequest) { r.ConnectionID = "" }, "connection_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(req)
			_, err := env.service.Create(ctx, "user-1", req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}

	created, err := env.service.Create(ctx, "user-1", valid())
	require.NoError(t, err)
	assert.Equal(t, "5511999990000", created.PhoneNumber)
	assert.Equal(t, models.RecurrenceNone, created.Recurrence)
	assert.Equal(t, models.ScheduledPending, created.Status)
}

func TestSchedulerService_UpdateCancelDelete(t *testing.T) {
	env := setupTestSchedulerService(t)
	ctx := context.Background()

	created, err := env.service.Create(ctx, "user-1", &models.ScheduledMessageRequest{
		ConnectionID: env.conn.ID,
		PhoneNumber:  "5511999990000",
		Message:      "Hello",
		ScheduledFor: env.now.Add(time.Hour),
	})
	require.NoError(t, err)

	updated, err := env.service.Update(ctx, "user-1", created.ID, &models.ScheduledMessageRequest{
		ConnectionID: env.conn.ID,
		PhoneNumber:  "5511888880000",
		Message:      "Hello again",
		ScheduledFor: env.now.Add(2 * time.Hour),
		Recurrence:   models.RecurrenceWeekly,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello again", updated.Message)
	assert.Equal(t, models.RecurrenceWeekly, updated.Recurrence)

	require.NoError(t, env.service.Cancel(ctx, "user-1", created.ID))
	assert.Equal(t, models.ScheduledCancelled, env.reload(t, created.ID).Status)
	assert.Len(t, env.publisher.ofType(realtime.EventScheduledUpdate), 1)

	err = env.service.Cancel(ctx, "user-1", created.ID)
	assert.ErrorIs(t, err, ErrNotPending)

	_, err = env.service.Update(ctx, "user-1", created.ID, &models.ScheduledMessageRequest{
		ConnectionID: env.conn.ID,
		PhoneNumber:  "5511888880000",
		Message:      "Too late",
		ScheduledFor: env.now.Add(2 * time.Hour),
	})
	assert.ErrorIs(t, err, ErrNotPending)

	list, err := env.service.List(ctx, "user-1", models.ScheduledCancelled, 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = env.service.List(ctx, "user-1", "archived", 0, 0)
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, env.service.Delete(ctx, "user-1", created.ID))
	_, err = env.service.Get(ctx, "user-1", created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSchedulerService_RunStopsWithContext(t *testing.T) {
	env := setupTestSchedulerService(t)
	env.service.cfg.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.service.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
