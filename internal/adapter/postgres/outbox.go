package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetops/transitcore/internal/port/eventstore"
)

// Outbox implements eventstore.Store using PostgreSQL (append-only).
type Outbox struct {
	pool *pgxpool.Pool
}

// NewOutbox creates a new Outbox backed by the given connection pool.
func NewOutbox(pool *pgxpool.Pool) *Outbox {
	return &Outbox{pool: pool}
}

// Append inserts a new unpublished entry into the run_events table.
func (o *Outbox) Append(ctx context.Context, e *eventstore.Entry) error {
	row := o.pool.QueryRow(ctx,
		`INSERT INTO run_events (id, subject, event_type, run_id, payload)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		e.ID, e.Subject, e.EventType, e.RunID, e.Payload)
	if err := row.Scan(&e.CreatedAt); err != nil {
		return fmt.Errorf("append run event: %w", err)
	}
	return nil
}

// MarkPublished stamps the entry as successfully published.
func (o *Outbox) MarkPublished(ctx context.Context, id string) error {
	_, err := o.pool.Exec(ctx,
		`UPDATE run_events SET published_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark run event %s published: %w", id, err)
	}
	return nil
}

const entryColumns = `id, subject, event_type, run_id::text, payload, published_at, created_at`

// ListUnpublished returns up to limit unpublished entries, oldest first.
func (o *Outbox) ListUnpublished(ctx context.Context, limit int) ([]eventstore.Entry, error) {
	rows, err := o.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM run_events
		 WHERE published_at IS NULL ORDER BY created_at ASC LIMIT $1`, entryColumns), limit)
	if err != nil {
		return nil, fmt.Errorf("list unpublished run events: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ListByRun returns all entries for a run, oldest first.
func (o *Outbox) ListByRun(ctx context.Context, runID string) ([]eventstore.Entry, error) {
	rows, err := o.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM run_events
		 WHERE run_id = $1 ORDER BY created_at ASC`, entryColumns), runID)
	if err != nil {
		return nil, fmt.Errorf("list run events for %s: %w", runID, err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

func collectEntries(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]eventstore.Entry, error) {
	var entries []eventstore.Entry
	for rows.Next() {
		var e eventstore.Entry
		if err := rows.Scan(&e.ID, &e.Subject, &e.EventType, &e.RunID,
			&e.Payload, &e.PublishedAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
