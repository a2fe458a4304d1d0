// Package messagequeue defines the message queue port (interface) and the
// run event wire payloads.
package messagequeue

import "context"

// Handler processes a message received from the queue. Returning an error
// triggers negative acknowledgment and redelivery.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to run events.
// Delivery is at-least-once: the queue performs no deduplication, so
// consumers must be idempotent on (eventType, runId, updatedAt).
type Queue interface {
	// Publish sends a message to the given subject. Fails with
	// domain.ErrNotConnected before Connect completes.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// Messages are delivered one at a time; a nil handler return
	// acknowledges the message, an error return redelivers it.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subjects for run lifecycle events and operator notifications. The
// run-notifications durable consumer binds to "run.*".
const (
	SubjectRunCreated      = "run.created"
	SubjectRunUpdated      = "run.updated"
	SubjectRunCancelled    = "run.cancelled"
	SubjectRunCompleted    = "run.completed"
	SubjectRunNotification = "run.notification"
)
