package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fleetops/transitcore/internal/port/eventstore"
	"github.com/fleetops/transitcore/internal/port/messagequeue"
	"github.com/fleetops/transitcore/internal/port/runstore"
	"github.com/fleetops/transitcore/internal/schedule"
)

// Replayer is the reconciliation job: on a cron schedule it republishes
// outbox entries whose original publish failed, and advances
// nextOccurrence for recurring runs whose computed occurrence has passed.
// Downstream consumers are idempotent, so re-emitting an already-delivered
// event is harmless.
type Replayer struct {
	outbox     eventstore.Store
	queue      messagequeue.Queue
	store      runstore.Store
	recurrence *schedule.Engine
	cron       *cron.Cron
	batch      int
	log        *slog.Logger
	now        func() time.Time
}

// NewReplayer creates a Replayer publishing at most batch entries per tick.
func NewReplayer(
	outbox eventstore.Store,
	queue messagequeue.Queue,
	store runstore.Store,
	recurrence *schedule.Engine,
	batch int,
	log *slog.Logger,
) *Replayer {
	if log == nil {
		log = slog.Default()
	}
	if batch <= 0 {
		batch = 100
	}
	return &Replayer{
		outbox:     outbox,
		queue:      queue,
		store:      store,
		recurrence: recurrence,
		cron:       cron.New(),
		batch:      batch,
		log:        log,
		now:        time.Now,
	}
}

// Start schedules the replay tick with the given cron spec ("@every 1m")
// and starts the scheduler.
func (r *Replayer) Start(spec string) error {
	if _, err := r.cron.AddFunc(spec, r.Tick); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for a running tick to finish.
func (r *Replayer) Stop() {
	<-r.cron.Stop().Done()
}

// Tick runs one reconciliation pass. Exported so operators (and tests) can
// force a pass outside the schedule.
func (r *Replayer) Tick() {
	ctx := context.Background()
	r.replayOutbox(ctx)
	r.refreshOccurrences(ctx)
}

func (r *Replayer) replayOutbox(ctx context.Context) {
	entries, err := r.outbox.ListUnpublished(ctx, r.batch)
	if err != nil {
		r.log.Error("outbox scan failed", "error", err)
		return
	}
	for _, e := range entries {
		if err := r.queue.Publish(ctx, e.Subject, e.Payload); err != nil {
			r.log.Warn("outbox replay publish failed", "entry_id", e.ID, "subject", e.Subject, "error", err)
			continue
		}
		if err := r.outbox.MarkPublished(ctx, e.ID); err != nil {
			r.log.Warn("outbox mark published failed", "entry_id", e.ID, "error", err)
			continue
		}
		r.log.Info("outbox entry replayed", "entry_id", e.ID, "subject", e.Subject, "run_id", e.RunID)
	}
}

func (r *Replayer) refreshOccurrences(ctx context.Context) {
	runs, err := r.store.ListRecurring(ctx)
	if err != nil {
		r.log.Error("recurring run scan failed", "error", err)
		return
	}
	now := r.now()
	for i := range runs {
		ru := runs[i]
		next := r.recurrence.NextOccurrence(ru, now)
		if next == nil {
			continue
		}
		if ru.NextOccurrence != nil && next.Equal(*ru.NextOccurrence) {
			continue
		}
		ru.LastOccurrence = ru.NextOccurrence
		ru.NextOccurrence = next
		if err := r.store.Update(ctx, &ru); err != nil {
			r.log.Warn("occurrence refresh failed", "run_id", ru.ID, "error", err)
		}
	}
}
