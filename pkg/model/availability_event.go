package model

import "time"

const (
	ChangeLocked   = "locked"
	ChangeUnlocked = "unlocked"
	ChangeBooked   = "booked"
)

// AvailabilityChangeEvent announces that a slot's bookable state changed.
// It is broadcast, never persisted; subscribers re-resolve availability
// instead of patching their view from the event payload.
type AvailabilityChangeEvent struct {
	TherapistID  string    `json:"therapist_id"`
	SlotDatetime time.Time `json:"slot_datetime"`
	ChangeType   string    `json:"change_type"`
	ActorID      string    `json:"actor_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}
