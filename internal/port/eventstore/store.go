// Package eventstore defines the run event outbox port (interface).
package eventstore

import (
	"context"
	"time"
)

// Entry is one outbox row: a run event that has been (or must be)
// published to the message queue. Rows are append-only.
type Entry struct {
	ID          string     `json:"id"`
	Subject     string     `json:"subject"`
	EventType   string     `json:"eventType"`
	RunID       string     `json:"runId"`
	Payload     []byte     `json:"payload"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Store is the port interface for the event outbox. The orchestrator
// appends an entry before each publish attempt and marks it published on
// success; the replayer re-emits unpublished entries so a publish failure
// after a committed store write is eventually reconciled.
type Store interface {
	// Append inserts a new unpublished outbox entry.
	Append(ctx context.Context, e *Entry) error

	// MarkPublished stamps the entry as successfully published.
	MarkPublished(ctx context.Context, id string) error

	// ListUnpublished returns up to limit unpublished entries, oldest first.
	ListUnpublished(ctx context.Context, limit int) ([]Entry, error)

	// ListByRun returns all entries for a run, oldest first.
	ListByRun(ctx context.Context, runID string) ([]Entry, error)
}
