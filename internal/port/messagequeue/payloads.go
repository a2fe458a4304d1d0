package messagequeue

import (
	"time"

	"github.com/fleetops/transitcore/internal/domain/run"
)

// Event type values carried in run event payloads. These are the external
// contract consumed by downstream systems; the NATS subject is derived from
// them but the payload field is authoritative for consumers.
const (
	EventRunCreated   = "RUN_CREATED"
	EventRunUpdated   = "RUN_UPDATED"
	EventRunCancelled = "RUN_CANCELLED"
	EventRunCompleted = "RUN_COMPLETED"
)

// Notification types for operator-facing messages.
const (
	NotificationAssignment   = "ASSIGNMENT"
	NotificationUpdate       = "UPDATE"
	NotificationCancellation = "CANCELLATION"
)

// RunEventPayload is the schema for run.* lifecycle messages. Consumers
// deduplicate on (EventType, Run.ID, Run.UpdatedAt).
type RunEventPayload struct {
	EventType  string    `json:"eventType"`
	Run        run.Run   `json:"run"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NotificationPayload is the schema for run.notification messages.
type NotificationPayload struct {
	Type      string    `json:"type"`
	RunID     string    `json:"runId"`
	DriverID  string    `json:"driverId,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// SubjectFor maps an event type to its queue subject.
func SubjectFor(eventType string) string {
	switch eventType {
	case EventRunCreated:
		return SubjectRunCreated
	case EventRunUpdated:
		return SubjectRunUpdated
	case EventRunCancelled:
		return SubjectRunCancelled
	case EventRunCompleted:
		return SubjectRunCompleted
	default:
		return SubjectRunNotification
	}
}
