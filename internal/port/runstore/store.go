// Package runstore defines the run store port (interface).
package runstore

import (
	"context"
	"time"

	"github.com/fleetops/transitcore/internal/domain/run"
)

// Store is the port interface for run persistence. It is the single source
// of truth for run state; callers never cache runs across operations.
type Store interface {
	// Create persists a new run and stamps createdAt/updatedAt.
	Create(ctx context.Context, r *run.Run) error

	// Get returns a run by ID, or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*run.Run, error)

	// Update persists the full run record and bumps updatedAt.
	Update(ctx context.Context, r *run.Run) error

	// UpdateStatus sets only the status (and endTime when non-nil) of a run.
	UpdateStatus(ctx context.Context, id string, status run.Status, endTime *time.Time) error

	// List returns runs matching the filter, newest first.
	List(ctx context.Context, f run.Filter) ([]run.Run, error)

	// ListActiveByDriver returns the runs assigned to the driver whose
	// status is in statuses, for conflict checking.
	ListActiveByDriver(ctx context.Context, driverID string, statuses []run.Status) ([]run.Run, error)

	// ListRecurring returns active recurring runs whose nextOccurrence is
	// unset or in the past, for the occurrence refresher.
	ListRecurring(ctx context.Context) ([]run.Run, error)
}
