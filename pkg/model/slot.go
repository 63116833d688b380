package model

import "time"

// Slot is a derived, bookable time window for a therapist. It is computed
// on demand from working hours minus bookings minus live locks, and is
// never persisted.
type Slot struct {
	TherapistID     string    `json:"therapist_id"`
	StartTime       time.Time `json:"start_time"`
	DurationMin     int       `json:"duration_min"`
	Available       bool      `json:"available"`
	HeldByRequester bool      `json:"held_by_requester"`
}
