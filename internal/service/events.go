package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/fleetops/transitcore/internal/domain/run"
	"github.com/fleetops/transitcore/internal/port/eventstore"
	"github.com/fleetops/transitcore/internal/port/messagequeue"
)

// publishEvent appends a lifecycle event to the outbox, publishes it to the
// queue and broadcasts it to live subscribers. The outbox row is appended
// before the publish attempt so a publish failure leaves a durable record
// for the replayer; the store write that preceded this call is never rolled
// back.
func (s *RunService) publishEvent(ctx context.Context, eventType string, r *run.Run) error {
	payload := messagequeue.RunEventPayload{
		EventType:  eventType,
		Run:        *r,
		OccurredAt: s.now(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	subject := messagequeue.SubjectFor(eventType)
	entry := &eventstore.Entry{
		ID:        uuid.NewString(),
		Subject:   subject,
		EventType: eventType,
		RunID:     r.ID,
		Payload:   data,
	}
	if err := s.outbox.Append(ctx, entry); err != nil {
		// The event can still be delivered now; it just loses replay cover.
		s.log.Error("outbox append failed", "run_id", r.ID, "event", eventType, "error", err)
	}

	if err := s.queue.Publish(ctx, subject, data); err != nil {
		s.log.Error("event publish failed, leaving outbox entry for replay",
			"run_id", r.ID, "event", eventType, "error", err)
		return fmt.Errorf("publish %s for run %s: %w", eventType, r.ID, err)
	}
	if err := s.outbox.MarkPublished(ctx, entry.ID); err != nil {
		s.log.Warn("mark published failed, event may be replayed",
			"entry_id", entry.ID, "error", err)
	}

	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, eventType, payload)
	}
	return nil
}

// publishNotification emits an operator notification on the notification
// subject, with the same outbox cover as lifecycle events.
func (s *RunService) publishNotification(ctx context.Context, notifType string, r *run.Run, message string) error {
	payload := messagequeue.NotificationPayload{
		Type:      notifType,
		RunID:     r.ID,
		DriverID:  r.DriverID,
		Message:   message,
		CreatedAt: s.now(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s notification: %w", notifType, err)
	}

	entry := &eventstore.Entry{
		ID:        uuid.NewString(),
		Subject:   messagequeue.SubjectRunNotification,
		EventType: notifType,
		RunID:     r.ID,
		Payload:   data,
	}
	if err := s.outbox.Append(ctx, entry); err != nil {
		s.log.Error("outbox append failed", "run_id", r.ID, "notification", notifType, "error", err)
	}

	if err := s.queue.Publish(ctx, messagequeue.SubjectRunNotification, data); err != nil {
		s.log.Error("notification publish failed, leaving outbox entry for replay",
			"run_id", r.ID, "notification", notifType, "error", err)
		return fmt.Errorf("publish %s notification for run %s: %w", notifType, r.ID, err)
	}
	if err := s.outbox.MarkPublished(ctx, entry.ID); err != nil {
		s.log.Warn("mark published failed, notification may be replayed",
			"entry_id", entry.ID, "error", err)
	}
	return nil
}
