// Package schedule contains the pure scheduling logic for transportation
// runs: temporal conflict detection and recurrence computation.
package schedule

import (
	"time"

	"github.com/fleetops/transitcore/internal/domain/run"
)

// HasConflict reports whether the candidate run overlaps any of the existing
// runs. Callers must pre-filter existing to runs assigned to the same driver
// with an active status (PENDING, and ideally IN_PROGRESS); this function
// performs no I/O.
//
// Windows are half-open [start, end): runs that merely touch at a boundary
// do not conflict. Known limitation: a run on either side that has no end
// time never conflicts, even when start times coincide exactly. Most runs
// only gain an end time after route optimization, so this gap is flagged
// for product review rather than tightened here.
func HasConflict(candidate run.Run, existing []run.Run) bool {
	if candidate.EndTime == nil {
		return false
	}
	for _, other := range existing {
		if other.ID != "" && other.ID == candidate.ID {
			continue
		}
		if other.EndTime == nil {
			continue
		}
		if overlaps(candidate.StartTime, *candidate.EndTime, other.StartTime, *other.EndTime) {
			return true
		}
	}
	return false
}

// overlaps tests half-open interval intersection via the three standard
// cases: candidate start inside the existing window, candidate end inside
// the existing window, or candidate fully containing the existing window.
func overlaps(cs, ce, s, e time.Time) bool {
	startsInside := !cs.Before(s) && cs.Before(e)
	endsInside := ce.After(s) && !ce.After(e)
	contains := !cs.After(s) && !ce.Before(e)
	return startsInside || endsInside || contains
}
