package schedule

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fleetops/transitcore/internal/domain/run"
)

// Engine computes recurrence for repeating runs. It is stateless apart from
// its logger; construct one per process and share it.
type Engine struct {
	log *slog.Logger
}

// NewEngine creates a recurrence Engine logging through the given logger.
// A nil logger falls back to slog.Default.
func NewEngine(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{log: log}
}

// NextOccurrence returns the next occurrence of the run at or after now, or
// nil when the run does not repeat (ONE_TIME) or has no further
// occurrences. For DAILY and WEEKLY schedules the returned instant keeps
// the time-of-day of the run's start time.
//
// A malformed CUSTOM rule is logged and degrades to nil; callers must treat
// nil as "no further occurrences", not as a parse success.
func (e *Engine) NextOccurrence(r run.Run, now time.Time) *time.Time {
	switch r.ScheduleType {
	case run.ScheduleDaily:
		return stepUntil(r.StartTime, now, 1)
	case run.ScheduleWeekly:
		return stepUntil(r.StartTime, now, 7)
	case run.ScheduleCustom:
		rule, err := ParseRule(r.RecurrenceRule)
		if err != nil {
			e.log.Warn("unparseable recurrence rule, treating as non-recurring",
				"run_id", r.ID, "rule", r.RecurrenceRule, "error", err)
			return nil
		}
		return rule.NextAfter(r.StartTime, now)
	default: // ONE_TIME
		return nil
	}
}

// GenerateRule derives the textual recurrence rule for a run.
// ONE_TIME yields the empty string; CUSTOM returns the supplied rule
// unchanged; DAILY and WEEKLY synthesize a rule from the start time and the
// optional recurrence end date.
func (e *Engine) GenerateRule(st run.ScheduleType, start time.Time, end *time.Time, custom string) string {
	switch st {
	case run.ScheduleDaily:
		rule := "FREQ=DAILY"
		if end != nil {
			rule += ";UNTIL=" + until(*end)
		}
		return rule
	case run.ScheduleWeekly:
		rule := fmt.Sprintf("FREQ=WEEKLY;BYDAY=%s", byDay[start.Weekday()])
		if end != nil {
			rule += ";UNTIL=" + until(*end)
		}
		return rule
	case run.ScheduleCustom:
		return custom
	default: // ONE_TIME
		return ""
	}
}

// RegenerateRule re-derives the rule for a run whose start time moved. A
// WEEKLY rule follows the new start's weekday; an UNTIL bound carried by the
// previous rule is preserved. ONE_TIME and CUSTOM rules pass through
// unchanged, since neither is derived from the start time.
func (e *Engine) RegenerateRule(st run.ScheduleType, start time.Time, previous string) string {
	if st != run.ScheduleDaily && st != run.ScheduleWeekly {
		return previous
	}
	var end *time.Time
	if prev, err := ParseRule(previous); err == nil {
		end = prev.Until()
	}
	return e.GenerateRule(st, start, end, "")
}

// stepUntil advances from start in whole-day steps of the given size until
// the result is not before now. Time-of-day is preserved.
func stepUntil(start, now time.Time, days int) *time.Time {
	next := start
	for next.Before(now) {
		next = next.AddDate(0, 0, days)
	}
	return &next
}
