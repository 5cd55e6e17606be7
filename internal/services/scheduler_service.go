package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"whatsapp-panel-server/internal/db"
	"whatsapp-panel-server/internal/metrics"
	"whatsapp-panel-server/internal/models"
	"whatsapp-panel-server/internal/realtime"
	"whatsapp-panel-server/pkg/logger"

	"go.uber.org/zap"
)

const (
	// DefaultMaxAttempts is how many sends are tried before a message fails
	DefaultMaxAttempts = 3

	// DefaultRetryDelay is the fixed delay between attempts
	DefaultRetryDelay = 5 * time.Minute

	// DefaultBatchSize bounds the rows handled per pass
	DefaultBatchSize = 50

	// MinPhoneDigits and MaxPhoneDigits bound E.164 numbers without the plus sign
	MinPhoneDigits = 8
	MaxPhoneDigits = 15
)

// ErrDispatchInProgress is returned when a pass is already running
var ErrDispatchInProgress = errors.New("scheduled message dispatch already in progress")

// SchedulerConfig tunes the dispatcher
type SchedulerConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	RetryDelay  time.Duration
}

// ScheduledEvent is the realtime payload of scheduled.update
type ScheduledEvent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// SchedulerService manages scheduled messages and dispatches due ones
type SchedulerService struct {
	repo        db.ScheduledMessageRepository
	connections db.ConnectionRepository
	profiles    *ProfileService
	outbound    *OutboundRecorder
	gateway     Gateway
	notifier    Notifier
	publisher   Publisher
	logs        *LogService
	cfg         SchedulerConfig

	// mu serialises dispatcher passes between the ticker and the HTTP trigger
	mu  sync.Mutex
	now func() time.Time
}

// NewSchedulerService creates a new SchedulerService
func NewSchedulerService(
	repo db.ScheduledMessageRepository,
	connections db.ConnectionRepository,
	profiles *ProfileService,
	outbound *OutboundRecorder,
	gateway Gateway,
	notifier Notifier,
	publisher Publisher,
	logs *LogService,
	cfg SchedulerConfig,
) *SchedulerService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &SchedulerService{
		repo:        repo,
		connections: connections,
		profiles:    profiles,
		outbound:    outbound,
		gateway:     gateway,
		notifier:    notifier,
		publisher:   publisherOrNop(publisher),
		logs:        logs,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Next returns the occurrence after t for a recurrence. Monthly follows
// time.AddDate normalisation, so Jan 31 is followed by Mar 3 (or Mar 2).
func Next(t time.Time, recurrence string) (time.Time, bool) {
	switch recurrence {
	case models.RecurrenceDaily:
		return t.AddDate(0, 0, 1), true
	case models.RecurrenceWeekly:
		return t.AddDate(0, 0, 7), true
	case models.RecurrenceMonthly:
		return t.AddDate(0, 1, 0), true
	default:
		return t, false
	}
}

// nextAfter advances t by recurrence until it is strictly after now
func nextAfter(t time.Time, recurrence string, now time.Time) time.Time {
	next, ok := Next(t, recurrence)
	for ok && !next.After(now) {
		next, _ = Next(next, recurrence)
	}
	return next
}

// Run dispatches on every interval tick until ctx is done
func (s *SchedulerService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	logger.Info("Scheduled message dispatcher started", zap.Duration("interval", s.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			logger.Info("Scheduled message dispatcher stopped")
			return
		case <-ticker.C:
			res, err := s.ProcessDue(ctx, s.now())
			if err != nil && !errors.Is(err, ErrDispatchInProgress) {
				logger.Error("Scheduled message dispatch failed", zap.Error(err))
				continue
			}
			if res != nil && res.Processed > 0 {
				logger.Info("Scheduled messages dispatched",
					zap.Int("processed", res.Processed),
					zap.Int("sent", res.Sent),
					zap.Int("retried", res.Retried),
					zap.Int("failed", res.Failed),
				)
			}
		}
	}
}

// ProcessDue sends every pending message whose time has come
func (s *SchedulerService) ProcessDue(ctx context.Context, now time.Time) (*models.DispatchResult, error) {
	if !s.mu.TryLock() {
		return nil, ErrDispatchInProgress
	}
	defer s.mu.Unlock()

	start := time.Now()
	defer func() { metrics.DispatchRuns.Observe(time.Since(start).Seconds()) }()

	now = now.UTC()
	due, err := s.repo.ListDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list due messages: %w", err)
	}

	res := &models.DispatchResult{}
	for _, m := range due {
		if ctx.Err() != nil {
			break
		}
		res.Processed++
		switch s.dispatch(ctx, m, now) {
		case models.ScheduledSent:
			res.Sent++
		case models.ScheduledFailed:
			res.Failed++
		default:
			res.Retried++
		}
	}
	return res, nil
}

// dispatch sends one message and records the outcome; it returns sent,
// failed, or pending for a retry
func (s *SchedulerService) dispatch(ctx context.Context, m *models.ScheduledMessage, now time.Time) string {
	externalID, conn, sendErr := s.send(ctx, m)
	if sendErr == nil {
		return s.recordSuccess(ctx, m, conn, externalID, now)
	}
	return s.recordFailure(ctx, m, sendErr, now)
}

func (s *SchedulerService) send(ctx context.Context, m *models.ScheduledMessage) (string, *models.Connection, error) {
	conn, err := s.connections.GetByID(ctx, m.UserID, m.ConnectionID)
	if err != nil {
		return "", nil, fmt.Errorf("connection unavailable: %w", err)
	}
	if !conn.IsConnected() {
		return "", nil, ErrConnectionNotReady
	}
	sent, err := s.gateway.SendText(ctx, conn.InstanceName, m.PhoneNumber, m.Message)
	if err != nil {
		return "", nil, err
	}
	return sent.Key.ID, conn, nil
}

func (s *SchedulerService) recordSuccess(ctx context.Context, m *models.ScheduledMessage, conn *models.Connection, externalID string, now time.Time) string {
	var err error
	outcome := "sent"
	if m.IsRecurring() {
		outcome = "rearmed"
		err = s.repo.Rearm(ctx, m.ID, nextAfter(m.ScheduledFor, m.Recurrence, now), now)
	} else {
		err = s.repo.MarkSent(ctx, m.ID, now)
	}
	if err != nil {
		// the message left; a stale row would send it again on the next pass
		s.logs.System(ctx, models.LevelError, "scheduler", "Failed to record delivered message", m.UserID, map[string]interface{}{
			"scheduled_message_id": m.ID,
			"error":                err.Error(),
		})
	}
	metrics.ScheduledDispatch.WithLabelValues(outcome).Inc()

	if _, err := s.outbound.RecordTo(ctx, conn, m.PhoneNumber, m.Message, models.SourceScheduled, externalID); err != nil {
		logger.Warn("Failed to store scheduled message in conversation",
			zap.String("scheduled_message_id", m.ID),
			zap.Error(err),
		)
	}

	s.logs.Activity(ctx, m.UserID, "scheduled_message.sent", "scheduled_message", m.ID, map[string]interface{}{
		"recurrence": m.Recurrence,
	})
	status := models.ScheduledSent
	if m.IsRecurring() {
		status = models.ScheduledPending
	}
	s.publisher.Publish(m.UserID, realtime.EventScheduledUpdate, ScheduledEvent{ID: m.ID, Status: status})
	return models.ScheduledSent
}

func (s *SchedulerService) recordFailure(ctx context.Context, m *models.ScheduledMessage, sendErr error, now time.Time) string {
	attempts := m.RetryCount + 1
	reason := truncate(sendErr.Error(), 500)

	if attempts >= s.cfg.MaxAttempts {
		if err := s.repo.MarkFailed(ctx, m.ID, attempts, reason); err != nil {
			logger.Error("Failed to mark scheduled message failed",
				zap.String("scheduled_message_id", m.ID),
				zap.Error(err),
			)
		}
		metrics.ScheduledDispatch.WithLabelValues("failed").Inc()
		s.logs.System(ctx, models.LevelError, "scheduler", "Scheduled message failed permanently", m.UserID, map[string]interface{}{
			"scheduled_message_id": m.ID,
			"attempts":             attempts,
			"error":                reason,
		})
		s.publisher.Publish(m.UserID, realtime.EventScheduledUpdate, ScheduledEvent{ID: m.ID, Status: models.ScheduledFailed, Error: reason})
		s.notifyFailure(ctx, m, reason)
		return models.ScheduledFailed
	}

	if err := s.repo.ScheduleRetry(ctx, m.ID, attempts, now.Add(s.cfg.RetryDelay), reason); err != nil {
		logger.Error("Failed to schedule retry",
			zap.String("scheduled_message_id", m.ID),
			zap.Error(err),
		)
	}
	metrics.ScheduledDispatch.WithLabelValues("retried").Inc()
	logger.Warn("Scheduled message send failed, retrying",
		zap.String("scheduled_message_id", m.ID),
		zap.Int("attempt", attempts),
		zap.Error(sendErr),
	)
	return models.ScheduledPending
}

func (s *SchedulerService) notifyFailure(ctx context.Context, m *models.ScheduledMessage, reason string) {
	if s.notifier == nil || !s.notifier.Enabled() {
		return
	}
	email := s.profiles.Email(ctx, m.UserID)
	if email == "" {
		return
	}

	subject := "Scheduled WhatsApp message could not be delivered"
	text := fmt.Sprintf("Your message to %s scheduled for %s failed after %d attempts: %s",
		m.PhoneNumber, m.ScheduledFor.Format(time.RFC1123), s.cfg.MaxAttempts, reason)
	body := fmt.Sprintf("<p>Your message to <strong>%s</strong> scheduled for %s failed after %d attempts.</p><p>Reason: %s</p><blockquote>%s</blockquote>",
		html.EscapeString(m.PhoneNumber), m.ScheduledFor.Format(time.RFC1123), s.cfg.MaxAttempts,
		html.EscapeString(reason), html.EscapeString(m.Message))

	if _, err := s.notifier.Send(ctx, email, subject, body, text); err != nil {
		logger.Warn("Failed to send failure notification",
			zap.String("scheduled_message_id", m.ID),
			zap.Error(err),
		)
	}
}

// List returns scheduled messages, optionally filtered by status
func (s *SchedulerService) List(ctx context.Context, userID, status string, limit, offset int) ([]*models.ScheduledMessage, error) {
	switch status {
	case "", models.ScheduledPending, models.ScheduledSent, models.ScheduledFailed, models.ScheduledCancelled:
	default:
		return nil, validationError(fmt.Sprintf("unknown status %q", status))
	}
	return s.repo.ListByUser(ctx, userID, status, limit, offset)
}

// Get returns one scheduled message
func (s *SchedulerService) Get(ctx context.Context, userID, id string) (*models.ScheduledMessage, error) {
	return s.repo.GetByID(ctx, userID, id)
}

// Create validates and queues a message
func (s *SchedulerService) Create(ctx context.Context, userID string, req *models.ScheduledMessageRequest) (*models.ScheduledMessage, error) {
	m := &models.ScheduledMessage{UserID: userID}
	if err := s.apply(ctx, m, req); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	s.logs.Activity(ctx, userID, "scheduled_message.created", "scheduled_message", m.ID, map[string]interface{}{
		"scheduled_for": m.ScheduledFor,
		"recurrence":    m.Recurrence,
	})
	return m, nil
}

// Update edits a message that is still pending
func (s *SchedulerService) Update(ctx context.Context, userID, id string, req *models.ScheduledMessageRequest) (*models.ScheduledMessage, error) {
	m, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if m.Status != models.ScheduledPending {
		return nil, ErrNotPending
	}
	if err := s.apply(ctx, m, req); err != nil {
		return nil, err
	}
	m.RetryCount = 0
	m.LastError = ""
	m.NextAttemptAt = nil
	if err := s.repo.Update(ctx, m); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotPending
		}
		return nil, err
	}
	s.logs.Activity(ctx, userID, "scheduled_message.updated", "scheduled_message", m.ID, nil)
	return m, nil
}

// Cancel stops a pending message
func (s *SchedulerService) Cancel(ctx context.Context, userID, id string) error {
	m, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return err
	}
	if m.Status != models.ScheduledPending {
		return ErrNotPending
	}
	if err := s.repo.Cancel(ctx, userID, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrNotPending
		}
		return err
	}
	s.logs.Activity(ctx, userID, "scheduled_message.cancelled", "scheduled_message", id, nil)
	s.publisher.Publish(userID, realtime.EventScheduledUpdate, ScheduledEvent{ID: id, Status: models.ScheduledCancelled})
	return nil
}

// Delete removes a message in any state
func (s *SchedulerService) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.logs.Activity(ctx, userID, "scheduled_message.deleted", "scheduled_message", id, nil)
	return nil
}

func (s *SchedulerService) apply(ctx context.Context, m *models.ScheduledMessage, req *models.ScheduledMessageRequest) error {
	if req == nil {
		return validationError("request body is required")
	}

	phone, err := NormalizePhone(req.PhoneNumber)
	if err != nil {
		return err
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return validationError("message is required")
	}
	if len(message) > MaxMessageLength {
		return validationError(fmt.Sprintf("message must be at most %d characters", MaxMessageLength))
	}

	if req.ScheduledFor.IsZero() {
		return validationError("scheduled_for is required")
	}
	if !req.ScheduledFor.After(s.now()) {
		return validationError("scheduled_for must be in the future")
	}

	recurrence := defaultString(req.Recurrence, models.RecurrenceNone)
	switch recurrence {
	case models.RecurrenceNone, models.RecurrenceDaily, models.RecurrenceWeekly, models.RecurrenceMonthly:
	default:
		return validationError(fmt.Sprintf("unknown recurrence %q", recurrence))
	}

	if req.ConnectionID == "" {
		return validationError("connection_id is required")
	}
	if _, err := s.connections.GetByID(ctx, m.UserID, req.ConnectionID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return validationError("connection not found")
		}
		return err
	}

	m.ConnectionID = req.ConnectionID
	m.PhoneNumber = phone
	m.Message = message
	m.ScheduledFor = req.ScheduledFor.UTC()
	m.Recurrence = recurrence
	return nil
}

// NormalizePhone strips formatting from a phone number and checks it has
// between MinPhoneDigits and MaxPhoneDigits digits
func NormalizePhone(phone string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", validationError("phone number may only contain digits")
		}
	}
	digits := b.String()
	if len(digits) < MinPhoneDigits || len(digits) > MaxPhoneDigits {
		return "", validationError(fmt.Sprintf("phone number must have %d to %d digits", MinPhoneDigits, MaxPhoneDigits))
	}
	return digits, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
