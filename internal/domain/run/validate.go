package run

import (
	"fmt"

	"github.com/fleetops/transitcore/internal/domain"
)

// validTypes enumerates all valid run types.
var validTypes = map[Type]bool{
	TypeRegular:   true,
	TypeSpecial:   true,
	TypeEmergency: true,
}

// validScheduleTypes enumerates all valid schedule types.
var validScheduleTypes = map[ScheduleType]bool{
	ScheduleOneTime: true,
	ScheduleDaily:   true,
	ScheduleWeekly:  true,
	ScheduleCustom:  true,
}

// Validate checks that a CreateRequest has all required fields and valid values.
func (r *CreateRequest) Validate() error {
	if !validTypes[r.Type] {
		return fmt.Errorf("invalid type %q: %w", r.Type, domain.ErrValidation)
	}
	if r.StartTime.IsZero() {
		return fmt.Errorf("startTime is required: %w", domain.ErrValidation)
	}
	if r.EndTime != nil && !r.EndTime.After(r.StartTime) {
		return fmt.Errorf("endTime must be after startTime: %w", domain.ErrValidation)
	}
	if !validScheduleTypes[r.ScheduleType] {
		return fmt.Errorf("invalid scheduleType %q: %w", r.ScheduleType, domain.ErrValidation)
	}
	if r.ScheduleType == ScheduleCustom && r.RecurrenceRule == "" {
		return fmt.Errorf("recurrenceRule is required for CUSTOM schedules: %w", domain.ErrValidation)
	}
	// EMERGENCY runs may be dispatched before passengers are known.
	if len(r.StudentIDs) == 0 && r.Type != TypeEmergency {
		return fmt.Errorf("studentIds must not be empty: %w", domain.ErrValidation)
	}
	if err := validateLocation(r.PickupLocation, "pickupLocation"); err != nil {
		return err
	}
	return validateLocation(r.DropoffLocation, "dropoffLocation")
}

// Validate checks that an UpdateRequest does not break run invariants on its
// own. Invariants that depend on the stored run (active run losing all
// students, terminal status) are enforced by the orchestrator.
func (r *UpdateRequest) Validate() error {
	if r.StartTime != nil && r.StartTime.IsZero() {
		return fmt.Errorf("startTime must not be zero: %w", domain.ErrValidation)
	}
	if r.PickupLocation != nil {
		if err := validateLocation(*r.PickupLocation, "pickupLocation"); err != nil {
			return err
		}
	}
	if r.DropoffLocation != nil {
		if err := validateLocation(*r.DropoffLocation, "dropoffLocation"); err != nil {
			return err
		}
	}
	return nil
}

func validateLocation(l Location, field string) error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("%s latitude out of range: %w", field, domain.ErrValidation)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("%s longitude out of range: %w", field, domain.ErrValidation)
	}
	return nil
}
