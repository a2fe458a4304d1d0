package schedule

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// Rule is an opaque recurrence expression. The underlying grammar (an
// RFC5545 subset: FREQ, BYDAY, BYHOUR, UNTIL) is hidden behind ParseRule
// and String so it can be swapped without touching callers.
type Rule struct {
	raw string
	opt rrule.ROption
}

// ParseRule parses a textual recurrence expression into a Rule.
func ParseRule(s string) (Rule, error) {
	opt, err := rrule.StrToROption(s)
	if err != nil {
		return Rule{}, fmt.Errorf("parse recurrence rule %q: %w", s, err)
	}
	return Rule{raw: s, opt: *opt}, nil
}

// String returns the original textual form of the rule.
func (r Rule) String() string {
	return r.raw
}

// NextAfter returns the first occurrence of the rule strictly after now,
// anchored at start. It returns nil when the rule yields no further
// occurrences (for example, UNTIL has passed).
func (r Rule) NextAfter(start, now time.Time) *time.Time {
	opt := r.opt
	opt.Dtstart = start
	rr, err := rrule.NewRRule(opt)
	if err != nil {
		return nil
	}
	next := rr.After(now, false)
	if next.IsZero() {
		return nil
	}
	return &next
}

// Until returns the rule's UNTIL bound, or nil when the rule is unbounded.
func (r Rule) Until() *time.Time {
	if r.opt.Until.IsZero() {
		return nil
	}
	u := r.opt.Until
	return &u
}

// until formats a time in the RFC5545 UNTIL form (UTC, basic format).
func until(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// byDay maps a Go weekday to its RFC5545 two-letter code.
var byDay = map[time.Weekday]string{
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
	time.Sunday:    "SU",
}
