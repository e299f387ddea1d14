package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ledgerdesk/ledgerdesk/internal/config"
	"github.com/ledgerdesk/ledgerdesk/internal/events"
	"github.com/ledgerdesk/ledgerdesk/internal/ledger"
)

// NotificationService turns in-process events into notifications.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes Handle to every event type, running it in
// the publisher's goroutine.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.AllTypes() {
		n.dispatcher.Subscribe(eventType, n.Handle)
	}
}

// Handle routes one event to its notifier.
func (n *NotificationService) Handle(ctx context.Context, event events.Event) error {
	switch event.Type {
	case events.EventRecordUpdated:
		return n.handleRecordUpdated(ctx, event)
	case events.EventTicketSubmitted, events.EventTransitionSubmitted, events.EventCommentSubmitted:
		return n.handleSubmission(ctx, event)
	}
	return nil
}

func (n *NotificationService) handleRecordUpdated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.RecordUpdatedPayload)
	if !ok {
		return nil
	}
	n.logger.Info("TicketRecordUpdated",
		zap.String("ticket_id", event.TicketID),
		zap.Int64("version", payload.Version),
		zap.String("status", string(payload.Status)),
		zap.Int("new_events", payload.NewEvents),
		zap.Int("pending_content", payload.PendingContent))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleSubmission(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SubmissionPayload)
	if !ok {
		return nil
	}
	fields := []zap.Field{
		zap.String("type", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.String("actor", event.Actor),
		zap.String("action", string(payload.Action)),
		zap.String("outcome", payload.Outcome),
	}
	if payload.Reason != "" {
		fields = append(fields, zap.String("reason", payload.Reason))
	}
	n.logger.Info("TicketSubmission", fields...)
	if payload.Outcome == string(ledger.OutcomePending) {
		// Pending writes are announced once confirmed, via the record update.
		return nil
	}
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}
