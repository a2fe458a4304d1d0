package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fleetops/transitcore/internal/domain"
	"github.com/fleetops/transitcore/internal/domain/run"
	"github.com/fleetops/transitcore/internal/port/messagequeue"
	"github.com/fleetops/transitcore/internal/port/routing"
	"github.com/fleetops/transitcore/internal/schedule"
)

type fixture struct {
	svc    *RunService
	store  *mockStore
	outbox *mockOutbox
	queue  *mockQueue
	router *mockRouter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  newMockStore(),
		outbox: &mockOutbox{},
		queue:  newMockQueue(),
		router: &mockRouter{est: routing.Estimate{
			DistanceKm:      12.5,
			DurationMinutes: 30,
			Route:           `{"geometry":"abc"}`,
			Traffic:         "NORMAL",
		}},
	}
	f.svc = NewRunService(f.store, f.outbox, f.queue, f.router,
		schedule.NewEngine(nil), nil, time.Second, nil)
	return f
}

func createReq(driverID string) run.CreateRequest {
	start := time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	return run.CreateRequest{
		Type:            run.TypeRegular,
		StartTime:       start,
		EndTime:         &end,
		PickupLocation:  run.Location{Latitude: 53.48, Longitude: -2.24, Address: "Pickup St"},
		DropoffLocation: run.Location{Latitude: 53.50, Longitude: -2.20, Address: "Dropoff Rd"},
		DriverID:        driverID,
		StudentIDs:      []string{"s1", "s2"},
		ScheduleType:    run.ScheduleOneTime,
	}
}

func TestCreateRun(t *testing.T) {
	f := newFixture(t)

	r, err := f.svc.Create(context.Background(), createReq("driver-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.Status != run.StatusPending {
		t.Fatalf("status = %s, want PENDING", r.Status)
	}
	if r.ID == "" {
		t.Fatal("run ID not assigned")
	}
	if r.EstimatedDistance != 12.5 || r.EstimatedDuration != 30 {
		t.Fatalf("route estimates not applied: %+v", r)
	}

	created := f.queue.onSubject(messagequeue.SubjectRunCreated)
	if len(created) != 1 {
		t.Fatalf("got %d RUN_CREATED messages, want 1", len(created))
	}
	var payload messagequeue.RunEventPayload
	if err := json.Unmarshal(created[0].data, &payload); err != nil {
		t.Fatalf("decode event payload: %v", err)
	}
	if payload.EventType != messagequeue.EventRunCreated {
		t.Fatalf("eventType = %s, want RUN_CREATED", payload.EventType)
	}
	if payload.Run.ID != r.ID {
		t.Fatalf("event run ID = %s, want %s", payload.Run.ID, r.ID)
	}

	notifs := f.queue.onSubject(messagequeue.SubjectRunNotification)
	if len(notifs) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notifs))
	}
	var n messagequeue.NotificationPayload
	if err := json.Unmarshal(notifs[0].data, &n); err != nil {
		t.Fatalf("decode notification: %v", err)
	}
	if n.Type != messagequeue.NotificationAssignment || n.DriverID != "driver-1" {
		t.Fatalf("notification = %+v, want ASSIGNMENT for driver-1", n)
	}

	if got := f.outbox.unpublishedCount(); got != 0 {
		t.Fatalf("%d outbox entries left unpublished after clean publish", got)
	}
}

func TestCreateRunWithoutDriver(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Create(context.Background(), createReq("")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if f.store.listActiveCalls != 0 {
		t.Fatal("conflict check ran for an unassigned run")
	}
	if len(f.queue.onSubject(messagequeue.SubjectRunNotification)) != 0 {
		t.Fatal("notification sent without an assigned driver")
	}
}

func TestCreateRunScheduleConflict(t *testing.T) {
	f := newFixture(t)

	start := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	f.store.put(run.Run{
		ID: "existing", Status: run.StatusPending, DriverID: "driver-1",
		StartTime: start, EndTime: &end,
	})

	_, err := f.svc.Create(context.Background(), createReq("driver-1"))
	if !errors.Is(err, domain.ErrScheduleConflict) {
		t.Fatalf("err = %v, want ErrScheduleConflict", err)
	}
	if f.store.createCalls != 0 {
		t.Fatal("conflicting run was persisted")
	}
	if len(f.queue.messages) != 0 {
		t.Fatal("events published for a rejected run")
	}
}

// A routing failure aborts creation entirely: nothing persisted, nothing
// published.
func TestCreateRunRoutingFailure(t *testing.T) {
	f := newFixture(t)
	f.router.err = domain.ErrRouteOptimization

	_, err := f.svc.Create(context.Background(), createReq("driver-1"))
	if !errors.Is(err, domain.ErrRouteOptimization) {
		t.Fatalf("err = %v, want ErrRouteOptimization", err)
	}
	if f.store.createCalls != 0 {
		t.Fatal("run persisted despite routing failure")
	}
	if len(f.queue.messages) != 0 {
		t.Fatal("events published despite routing failure")
	}
}

// A publish failure after the store write surfaces the error but keeps the
// run; the outbox retains the entry for the replayer.
func TestCreateRunPublishFailure(t *testing.T) {
	f := newFixture(t)
	f.queue.publishErr = errBrokerDown

	r, err := f.svc.Create(context.Background(), createReq("driver-1"))
	if err == nil {
		t.Fatal("expected publish error")
	}
	if !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("err = %v, want wrapped ErrNotConnected", err)
	}
	if r == nil {
		t.Fatal("created run must be returned alongside the publish error")
	}
	if stored := f.store.get(r.ID); stored.ID != r.ID {
		t.Fatal("run missing from store after publish failure")
	}
	if got := f.outbox.unpublishedCount(); got == 0 {
		t.Fatal("no unpublished outbox entry left for the replayer")
	}
}

func TestCreateRunRecurrence(t *testing.T) {
	f := newFixture(t)
	fixed := time.Date(2024, 3, 19, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return fixed }

	req := createReq("driver-1")
	req.ScheduleType = run.ScheduleDaily

	r, err := f.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.RecurrenceRule != "FREQ=DAILY" {
		t.Fatalf("recurrenceRule = %q, want FREQ=DAILY", r.RecurrenceRule)
	}
	if r.NextOccurrence == nil {
		t.Fatal("nextOccurrence not computed")
	}
	if want := req.StartTime; !r.NextOccurrence.Equal(want) {
		t.Fatalf("nextOccurrence = %v, want %v", r.NextOccurrence, want)
	}
}

func TestCreateRunValidation(t *testing.T) {
	f := newFixture(t)

	req := createReq("driver-1")
	req.StudentIDs = nil

	_, err := f.svc.Create(context.Background(), req)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if f.router.calls != 0 {
		t.Fatal("optimizer called for an invalid request")
	}
}

func TestUpdateRunRelocates(t *testing.T) {
	f := newFixture(t)

	r, err := f.svc.Create(context.Background(), createReq("driver-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	callsAfterCreate := f.router.calls

	newPickup := run.Location{Latitude: 53.40, Longitude: -2.30, Address: "New Pickup"}
	updated, err := f.svc.Update(context.Background(), r.ID, run.UpdateRequest{
		PickupLocation: &newPickup,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if f.router.calls != callsAfterCreate+1 {
		t.Fatal("location change must re-run the optimizer")
	}
	if updated.PickupLocation != newPickup {
		t.Fatalf("pickup = %+v, want %+v", updated.PickupLocation, newPickup)
	}
	if len(f.queue.onSubject(messagequeue.SubjectRunUpdated)) != 1 {
		t.Fatal("RUN_UPDATED not published")
	}
}

func TestUpdateRunSkipsOptimizerWithoutLocationChange(t *testing.T) {
	f := newFixture(t)

	r, err := f.svc.Create(context.Background(), createReq("driver-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	callsAfterCreate := f.router.calls

	pa := "pa-7"
	if _, err := f.svc.Update(context.Background(), r.ID, run.UpdateRequest{PAID: &pa}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if f.router.calls != callsAfterCreate {
		t.Fatal("optimizer re-ran without a location change")
	}
}

func TestUpdateRunDriverConflict(t *testing.T) {
	f := newFixture(t)

	busyStart := time.Date(2024, 3, 20, 9, 30, 0, 0, time.UTC)
	busyEnd := busyStart.Add(2 * time.Hour)
	f.store.put(run.Run{
		ID: "busy", Status: run.StatusPending, DriverID: "driver-2",
		StartTime: busyStart, EndTime: &busyEnd,
	})

	r, err := f.svc.Create(context.Background(), createReq("driver-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	newDriver := "driver-2"
	_, err = f.svc.Update(context.Background(), r.ID, run.UpdateRequest{DriverID: &newDriver})
	if !errors.Is(err, domain.ErrScheduleConflict) {
		t.Fatalf("err = %v, want ErrScheduleConflict", err)
	}
	if f.store.get(r.ID).DriverID != "driver-1" {
		t.Fatal("rejected reassignment must leave the stored run unchanged")
	}
}

func TestUpdateRunReassignmentNotifies(t *testing.T) {
	f := newFixture(t)

	r, err := f.svc.Create(context.Background(), createReq("driver-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	before := len(f.queue.onSubject(messagequeue.SubjectRunNotification))

	newDriver := "driver-2"
	if _, err := f.svc.Update(context.Background(), r.ID, run.UpdateRequest{DriverID: &newDriver}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	notifs := f.queue.onSubject(messagequeue.SubjectRunNotification)
	if len(notifs) != before+1 {
		t.Fatalf("got %d notifications, want %d", len(notifs), before+1)
	}
	var n messagequeue.NotificationPayload
	if err := json.Unmarshal(notifs[len(notifs)-1].data, &n); err != nil {
		t.Fatalf("decode notification: %v", err)
	}
	if n.Type != messagequeue.NotificationUpdate || n.DriverID != "driver-2" {
		t.Fatalf("notification = %+v, want UPDATE for driver-2", n)
	}
}

// Moving a weekly run's start to another weekday must re-derive the rule:
// the persisted BYDAY has to match the day the run actually recurs on.
func TestUpdateRunTimingRegeneratesRule(t *testing.T) {
	f := newFixture(t)
	fixed := time.Date(2024, 3, 19, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return fixed }

	req := createReq("driver-1")
	req.ScheduleType = run.ScheduleWeekly

	r, err := f.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.RecurrenceRule != "FREQ=WEEKLY;BYDAY=WE" {
		t.Fatalf("created rule = %q, want FREQ=WEEKLY;BYDAY=WE", r.RecurrenceRule)
	}

	thu := time.Date(2024, 3, 21, 10, 0, 0, 0, time.UTC)
	thuEnd := thu.Add(2 * time.Hour)
	updated, err := f.svc.Update(context.Background(), r.ID, run.UpdateRequest{
		StartTime: &thu,
		EndTime:   &thuEnd,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.RecurrenceRule != "FREQ=WEEKLY;BYDAY=TH" {
		t.Fatalf("rule = %q after moving start to Thursday, want FREQ=WEEKLY;BYDAY=TH", updated.RecurrenceRule)
	}
	if updated.NextOccurrence == nil || updated.NextOccurrence.Weekday() != time.Thursday {
		t.Fatalf("nextOccurrence = %v, want a Thursday", updated.NextOccurrence)
	}
	if stored := f.store.get(r.ID); stored.RecurrenceRule != "FREQ=WEEKLY;BYDAY=TH" {
		t.Fatalf("stored rule = %q, want FREQ=WEEKLY;BYDAY=TH", stored.RecurrenceRule)
	}
}

func TestUpdateRunActiveCannotLoseAllStudents(t *testing.T) {
	f := newFixture(t)

	r, err := f.svc.Create(context.Background(), createReq("driver-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = f.svc.Update(context.Background(), r.ID, run.UpdateRequest{StudentIDs: []string{}})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestUpdateRunTerminal(t *testing.T) {
	f := newFixture(t)

	f.store.put(run.Run{ID: "done", Status: run.StatusCompleted, DriverID: "driver-1",
		StartTime: time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)})

	pa := "pa-7"
	_, err := f.svc.Update(context.Background(), "done", run.UpdateRequest{PAID: &pa})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	if f.store.updateCalls != 0 {
		t.Fatal("terminal run was written")
	}
}

func TestRunLifecycle(t *testing.T) {
	f := newFixture(t)

	r, err := f.svc.Create(context.Background(), createReq("driver-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	started, err := f.svc.Start(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if started.Status != run.StatusInProgress {
		t.Fatalf("status = %s, want IN_PROGRESS", started.Status)
	}

	done, err := f.svc.Complete(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != run.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", done.Status)
	}
	if done.EndTime == nil {
		t.Fatal("Complete must stamp endTime")
	}
	if len(f.queue.onSubject(messagequeue.SubjectRunCompleted)) != 1 {
		t.Fatal("RUN_COMPLETED not published")
	}
}

func TestStartRejectsNonPending(t *testing.T) {
	f := newFixture(t)

	f.store.put(run.Run{ID: "going", Status: run.StatusInProgress, DriverID: "driver-1",
		StartTime: time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)})

	_, err := f.svc.Start(context.Background(), "going")
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestCancelRun(t *testing.T) {
	f := newFixture(t)

	r, err := f.svc.Create(context.Background(), createReq("driver-1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	before := len(f.queue.onSubject(messagequeue.SubjectRunNotification))

	cancelled, err := f.svc.Cancel(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != run.StatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", cancelled.Status)
	}
	if len(f.queue.onSubject(messagequeue.SubjectRunCancelled)) != 1 {
		t.Fatal("RUN_CANCELLED not published")
	}

	notifs := f.queue.onSubject(messagequeue.SubjectRunNotification)
	if len(notifs) != before+1 {
		t.Fatal("CANCELLATION notification not sent")
	}
}

// Cancelling or completing a terminal run must fail and leave the record
// exactly as it was.
func TestTerminalRunsRejectFurtherTransitions(t *testing.T) {
	f := newFixture(t)

	end := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	stored := run.Run{ID: "done", Status: run.StatusCompleted, DriverID: "driver-1",
		StartTime: time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC), EndTime: &end}
	f.store.put(stored)

	if _, err := f.svc.Cancel(context.Background(), "done"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("Cancel err = %v, want ErrInvalidTransition", err)
	}
	if _, err := f.svc.Complete(context.Background(), "done"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("Complete err = %v, want ErrInvalidTransition", err)
	}
	if f.store.updateStatusCalls != 0 {
		t.Fatal("status written despite rejected transition")
	}
	if got := f.store.get("done"); got.Status != stored.Status || !got.EndTime.Equal(*stored.EndTime) {
		t.Fatal("terminal record was modified")
	}
}

func TestCancelNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Cancel(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// Two concurrent creates for the same driver over the same window: exactly
// one wins, the other sees the conflict.
func TestCreateRunConcurrentSameDriver(t *testing.T) {
	f := newFixture(t)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Create(context.Background(), createReq("driver-1"))
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrScheduleConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != workers-1 {
		t.Fatalf("got %d successes and %d conflicts, want 1 and %d", ok, conflicts, workers-1)
	}
}
