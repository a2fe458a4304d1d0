// Package run defines the Run domain entity for scheduled transportation runs.
package run

import "time"

// Status represents the current state of a run.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Type classifies the kind of transportation run.
type Type string

const (
	TypeRegular   Type = "REGULAR"
	TypeSpecial   Type = "SPECIAL"
	TypeEmergency Type = "EMERGENCY"
)

// ScheduleType defines how a run repeats.
type ScheduleType string

const (
	ScheduleOneTime ScheduleType = "ONE_TIME"
	ScheduleDaily   ScheduleType = "DAILY"
	ScheduleWeekly  ScheduleType = "WEEKLY"
	ScheduleCustom  ScheduleType = "CUSTOM"
)

// Location is a structured pickup or dropoff point.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}

// Run represents a single scheduled transportation commitment: a vehicle,
// driver and optional passenger assistant moving one or more students
// between two locations at a planned time.
type Run struct {
	ID              string       `json:"id"`
	Type            Type         `json:"type"`
	Status          Status       `json:"status"`
	StartTime       time.Time    `json:"startTime"`
	EndTime         *time.Time   `json:"endTime,omitempty"`
	PickupLocation  Location     `json:"pickupLocation"`
	DropoffLocation Location     `json:"dropoffLocation"`
	DriverID        string       `json:"driverId,omitempty"`
	PAID            string       `json:"paId,omitempty"`
	StudentIDs      []string     `json:"studentIds"`
	ScheduleType    ScheduleType `json:"scheduleType"`
	RecurrenceRule  string       `json:"recurrenceRule,omitempty"`
	NextOccurrence  *time.Time   `json:"nextOccurrence,omitempty"`
	LastOccurrence  *time.Time   `json:"lastOccurrence,omitempty"`

	// Cached outputs of the last route optimization.
	EstimatedDistance float64 `json:"estimatedDistance,omitempty"` // km
	EstimatedDuration float64 `json:"estimatedDuration,omitempty"` // minutes
	OptimizedRoute    string  `json:"optimizedRoute,omitempty"`
	TrafficConditions string  `json:"trafficConditions,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Active reports whether the run still occupies its driver's schedule.
func (r *Run) Active() bool {
	return r.Status == StatusPending || r.Status == StatusInProgress
}

// Terminal reports whether the run has reached a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// transitions enumerates the permitted status changes. Terminal states have
// no outgoing edges.
var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether the state machine permits moving from one
// status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CreateRequest holds the fields needed to create a new run.
type CreateRequest struct {
	Type            Type         `json:"type"`
	StartTime       time.Time    `json:"startTime"`
	EndTime         *time.Time   `json:"endTime,omitempty"`
	PickupLocation  Location     `json:"pickupLocation"`
	DropoffLocation Location     `json:"dropoffLocation"`
	DriverID        string       `json:"driverId,omitempty"`
	PAID            string       `json:"paId,omitempty"`
	StudentIDs      []string     `json:"studentIds"`
	ScheduleType    ScheduleType `json:"scheduleType"`
	RecurrenceRule  string       `json:"recurrenceRule,omitempty"`
	RecurrenceEnd   *time.Time   `json:"recurrenceEnd,omitempty"`
}

// UpdateRequest holds a partial update for an existing run. Nil fields are
// left untouched.
type UpdateRequest struct {
	StartTime       *time.Time `json:"startTime,omitempty"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	PickupLocation  *Location  `json:"pickupLocation,omitempty"`
	DropoffLocation *Location  `json:"dropoffLocation,omitempty"`
	DriverID        *string    `json:"driverId,omitempty"`
	PAID            *string    `json:"paId,omitempty"`
	StudentIDs      []string   `json:"studentIds,omitempty"`
}

// Filter selects runs in list queries. Zero values match everything.
type Filter struct {
	Status   Status
	Type     Type
	DriverID string
}
