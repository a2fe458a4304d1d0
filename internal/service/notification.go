package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/fleetops/transitcore/internal/port/messagequeue"
)

// Notifier delivers a decoded operator notification to its channel (push,
// SMS, email). The concrete channels live outside this service; the default
// implementation only records the delivery.
type Notifier interface {
	Notify(ctx context.Context, n messagequeue.NotificationPayload) error
}

// LogNotifier is the fallback Notifier that writes deliveries to the log.
type LogNotifier struct {
	Log *slog.Logger
}

func (l LogNotifier) Notify(_ context.Context, n messagequeue.NotificationPayload) error {
	l.Log.Info("notification delivered",
		"type", n.Type, "run_id", n.RunID, "driver_id", n.DriverID, "message", n.Message)
	return nil
}

// NotificationService consumes the run-notifications queue and hands
// notifications to the Notifier. Delivery is at-least-once: a handler error
// triggers redelivery, so the Notifier must be idempotent on
// (type, runId, createdAt).
type NotificationService struct {
	queue    messagequeue.Queue
	notifier Notifier
	log      *slog.Logger
}

// NewNotificationService creates a NotificationService. A nil notifier
// falls back to LogNotifier.
func NewNotificationService(queue messagequeue.Queue, notifier Notifier, log *slog.Logger) *NotificationService {
	if log == nil {
		log = slog.Default()
	}
	if notifier == nil {
		notifier = LogNotifier{Log: log}
	}
	return &NotificationService{queue: queue, notifier: notifier, log: log}
}

// Start subscribes to run.* and dispatches notification messages one at a
// time. Lifecycle events on the same pattern are acknowledged without
// action; only run.notification messages reach the Notifier. The returned
// function cancels the subscription.
func (s *NotificationService) Start(ctx context.Context) (func(), error) {
	cancel, err := s.queue.Subscribe(ctx, "run.*", func(ctx context.Context, subject string, data []byte) error {
		if subject != messagequeue.SubjectRunNotification {
			return nil
		}
		var n messagequeue.NotificationPayload
		if err := json.Unmarshal(data, &n); err != nil {
			// A poison message would redeliver forever; ack and log instead.
			s.log.Error("undecodable notification dropped", "error", err)
			return nil
		}
		if err := s.notifier.Notify(ctx, n); err != nil {
			return fmt.Errorf("deliver %s notification for run %s: %w", n.Type, n.RunID, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe run events: %w", err)
	}
	return cancel, nil
}
