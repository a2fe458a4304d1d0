package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fleetops/transitcore/internal/domain"
	"github.com/fleetops/transitcore/internal/domain/run"
	"github.com/fleetops/transitcore/internal/port/eventstore"
	"github.com/fleetops/transitcore/internal/port/messagequeue"
	"github.com/fleetops/transitcore/internal/port/routing"
	"github.com/fleetops/transitcore/internal/port/runstore"
	"github.com/fleetops/transitcore/internal/schedule"
)

// activeStatuses are the statuses that occupy a driver's schedule and must
// be considered during conflict checks.
var activeStatuses = []run.Status{run.StatusPending, run.StatusInProgress}

// Broadcaster pushes published events to live subscribers (WebSocket hub).
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// RunService orchestrates run lifecycle operations: conflict checking,
// route optimization, recurrence computation, persistence and event
// publication. It never caches run state across calls; the store is the
// single source of truth.
type RunService struct {
	store        runstore.Store
	outbox       eventstore.Store
	queue        messagequeue.Queue
	router       routing.Provider
	recurrence   *schedule.Engine
	hub          Broadcaster
	routeTimeout time.Duration
	driverLocks  *keyedMutex
	log          *slog.Logger
	now          func() time.Time
}

// NewRunService creates a RunService. hub may be nil when no live feed is
// attached.
func NewRunService(
	store runstore.Store,
	outbox eventstore.Store,
	queue messagequeue.Queue,
	router routing.Provider,
	recurrence *schedule.Engine,
	hub Broadcaster,
	routeTimeout time.Duration,
	log *slog.Logger,
) *RunService {
	if log == nil {
		log = slog.Default()
	}
	if routeTimeout <= 0 {
		routeTimeout = 15 * time.Second
	}
	return &RunService{
		store:        store,
		outbox:       outbox,
		queue:        queue,
		router:       router,
		recurrence:   recurrence,
		hub:          hub,
		routeTimeout: routeTimeout,
		driverLocks:  newKeyedMutex(),
		log:          log,
		now:          time.Now,
	}
}

// Create validates the request, checks the driver's schedule for conflicts,
// optimizes the route, computes recurrence and persists the run with status
// PENDING, then publishes RUN_CREATED (and an ASSIGNMENT notification when
// a driver is assigned).
//
// No partial writes: a conflict or a routing failure aborts before anything
// is persisted. A publish failure after the store write is surfaced
// alongside the created run; the write is not rolled back and the outbox
// replayer re-emits the event.
func (s *RunService) Create(ctx context.Context, req run.CreateRequest) (*run.Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// The driver lock spans fetch, conflict check and persist; see keyedMutex.
	unlock := s.driverLocks.Lock(req.DriverID)
	defer unlock()

	candidate := run.Run{
		ID:              uuid.NewString(),
		Type:            req.Type,
		Status:          run.StatusPending,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		PickupLocation:  req.PickupLocation,
		DropoffLocation: req.DropoffLocation,
		DriverID:        req.DriverID,
		PAID:            req.PAID,
		StudentIDs:      req.StudentIDs,
		ScheduleType:    req.ScheduleType,
	}

	if req.DriverID != "" {
		existing, err := s.store.ListActiveByDriver(ctx, req.DriverID, activeStatuses)
		if err != nil {
			return nil, fmt.Errorf("fetch driver schedule: %w", err)
		}
		if schedule.HasConflict(candidate, existing) {
			return nil, fmt.Errorf("driver %s already committed in [%s, %s): %w",
				req.DriverID, req.StartTime.Format(time.RFC3339),
				req.EndTime.Format(time.RFC3339), domain.ErrScheduleConflict)
		}
	}

	est, err := s.optimize(ctx, candidate.PickupLocation, candidate.DropoffLocation)
	if err != nil {
		// Fatal to the whole call: the run must not be persisted with
		// missing or stale routing data.
		return nil, err
	}
	candidate.EstimatedDistance = est.DistanceKm
	candidate.EstimatedDuration = est.DurationMinutes
	candidate.OptimizedRoute = est.Route
	candidate.TrafficConditions = est.Traffic

	candidate.RecurrenceRule = s.recurrence.GenerateRule(
		req.ScheduleType, req.StartTime, req.RecurrenceEnd, req.RecurrenceRule)
	candidate.NextOccurrence = s.recurrence.NextOccurrence(candidate, s.now())

	if err := s.store.Create(ctx, &candidate); err != nil {
		return nil, err
	}

	if err := s.publishEvent(ctx, messagequeue.EventRunCreated, &candidate); err != nil {
		return &candidate, err
	}
	if candidate.DriverID != "" {
		if err := s.publishNotification(ctx, messagequeue.NotificationAssignment, &candidate,
			fmt.Sprintf("run %s assigned for %s", candidate.ID, candidate.StartTime.Format(time.RFC3339))); err != nil {
			return &candidate, err
		}
	}
	return &candidate, nil
}

// Update applies a partial update to an existing run. Location changes
// re-run the route optimizer against the merged locations before
// persisting; timing or driver changes re-run the conflict check; timing
// changes re-derive recurrence.
func (s *RunService) Update(ctx context.Context, id string, req run.UpdateRequest) (*run.Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		return nil, fmt.Errorf("run %s is %s: %w", id, current.Status, domain.ErrInvalidTransition)
	}
	if req.StudentIDs != nil && len(req.StudentIDs) == 0 {
		return nil, fmt.Errorf("active run cannot lose all students: %w", domain.ErrValidation)
	}

	merged := *current
	timingChanged := false
	locationChanged := false
	driverChanged := false

	if req.StartTime != nil {
		merged.StartTime = *req.StartTime
		timingChanged = true
	}
	if req.EndTime != nil {
		merged.EndTime = req.EndTime
		timingChanged = true
	}
	if req.PickupLocation != nil {
		merged.PickupLocation = *req.PickupLocation
		locationChanged = true
	}
	if req.DropoffLocation != nil {
		merged.DropoffLocation = *req.DropoffLocation
		locationChanged = true
	}
	if req.DriverID != nil && *req.DriverID != current.DriverID {
		merged.DriverID = *req.DriverID
		driverChanged = true
	}
	if req.PAID != nil {
		merged.PAID = *req.PAID
	}
	if req.StudentIDs != nil {
		merged.StudentIDs = req.StudentIDs
	}

	if merged.DriverID != "" && (timingChanged || driverChanged) {
		unlock := s.driverLocks.Lock(merged.DriverID)
		defer unlock()

		existing, err := s.store.ListActiveByDriver(ctx, merged.DriverID, activeStatuses)
		if err != nil {
			return nil, fmt.Errorf("fetch driver schedule: %w", err)
		}
		if schedule.HasConflict(merged, existing) {
			return nil, fmt.Errorf("driver %s already committed: %w",
				merged.DriverID, domain.ErrScheduleConflict)
		}
	}

	if locationChanged {
		est, err := s.optimize(ctx, merged.PickupLocation, merged.DropoffLocation)
		if err != nil {
			return nil, err
		}
		merged.EstimatedDistance = est.DistanceKm
		merged.EstimatedDuration = est.DurationMinutes
		merged.OptimizedRoute = est.Route
		merged.TrafficConditions = est.Traffic
	}

	if timingChanged {
		// A moved start time changes what DAILY/WEEKLY rules derive to
		// (WEEKLY follows the start's weekday), so the rule is re-derived
		// before the next occurrence is computed from it.
		merged.RecurrenceRule = s.recurrence.RegenerateRule(
			merged.ScheduleType, merged.StartTime, merged.RecurrenceRule)
		merged.NextOccurrence = s.recurrence.NextOccurrence(merged, s.now())
	}

	if err := s.store.Update(ctx, &merged); err != nil {
		return nil, err
	}

	if err := s.publishEvent(ctx, messagequeue.EventRunUpdated, &merged); err != nil {
		return &merged, err
	}
	if req.DriverID != nil && merged.DriverID != "" {
		if err := s.publishNotification(ctx, messagequeue.NotificationUpdate, &merged,
			fmt.Sprintf("run %s reassigned to you", merged.ID)); err != nil {
			return &merged, err
		}
	}
	return &merged, nil
}

// Start transitions a pending run to IN_PROGRESS in response to an external
// start signal and publishes RUN_UPDATED.
func (s *RunService) Start(ctx context.Context, id string) (*run.Run, error) {
	r, err := s.transition(ctx, id, run.StatusInProgress, nil)
	if err != nil {
		return nil, err
	}
	if err := s.publishEvent(ctx, messagequeue.EventRunUpdated, r); err != nil {
		return r, err
	}
	return r, nil
}

// Cancel transitions a run to CANCELLED from any non-terminal state and
// publishes RUN_CANCELLED (plus a CANCELLATION notification when a driver
// was assigned).
func (s *RunService) Cancel(ctx context.Context, id string) (*run.Run, error) {
	r, err := s.transition(ctx, id, run.StatusCancelled, nil)
	if err != nil {
		return nil, err
	}
	if err := s.publishEvent(ctx, messagequeue.EventRunCancelled, r); err != nil {
		return r, err
	}
	if r.DriverID != "" {
		if err := s.publishNotification(ctx, messagequeue.NotificationCancellation, r,
			fmt.Sprintf("run %s was cancelled", r.ID)); err != nil {
			return r, err
		}
	}
	return r, nil
}

// Complete transitions a run to COMPLETED, stamps endTime with the
// completion instant and publishes RUN_COMPLETED. No notification is sent.
func (s *RunService) Complete(ctx context.Context, id string) (*run.Run, error) {
	completedAt := s.now()
	r, err := s.transition(ctx, id, run.StatusCompleted, &completedAt)
	if err != nil {
		return nil, err
	}
	if err := s.publishEvent(ctx, messagequeue.EventRunCompleted, r); err != nil {
		return r, err
	}
	return r, nil
}

// Get returns a run by ID.
func (s *RunService) Get(ctx context.Context, id string) (*run.Run, error) {
	return s.store.Get(ctx, id)
}

// List returns runs matching the filter.
func (s *RunService) List(ctx context.Context, f run.Filter) ([]run.Run, error) {
	return s.store.List(ctx, f)
}

// transition validates and applies a status change, leaving the record
// unchanged when the state machine rejects it.
func (s *RunService) transition(ctx context.Context, id string, to run.Status, endTime *time.Time) (*run.Run, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !run.CanTransition(r.Status, to) {
		return nil, fmt.Errorf("run %s: %s -> %s: %w", id, r.Status, to, domain.ErrInvalidTransition)
	}
	if err := s.store.UpdateStatus(ctx, id, to, endTime); err != nil {
		return nil, err
	}
	r.Status = to
	if endTime != nil {
		r.EndTime = endTime
	}
	r.UpdatedAt = s.now()
	return r, nil
}

// optimize calls the routing provider with the configured timeout. A
// provider hang must not stall run creation; a timeout is reported exactly
// like any other routing failure.
func (s *RunService) optimize(ctx context.Context, pickup, dropoff run.Location) (routing.Estimate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.routeTimeout)
	defer cancel()
	return s.router.Optimize(ctx, pickup, dropoff, nil)
}
