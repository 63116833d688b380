package model

import "time"

const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCompleted = "completed"
	BookingStatusCancelled = "cancelled"
	BookingStatusNoShow    = "no_show"
)

// ActiveBookingStatuses are the statuses that keep a slot occupied. Only a
// cancelled booking frees its datetime for rebooking.
var ActiveBookingStatuses = []string{
	BookingStatusPending,
	BookingStatusConfirmed,
	BookingStatusCompleted,
	BookingStatusNoShow,
}

// Booking is the durable outcome of a committed reservation. For a given
// (therapist_id, scheduled_at) at most one booking may exist in a
// non-cancelled status. Status transitions past creation belong to the
// management tooling, not the booking core.
type Booking struct {
	ID           string    `json:"id,omitempty" bson:"_id,omitempty"`
	TherapistID  string    `json:"therapist_id" bson:"therapist_id"`
	ClientID     string    `json:"client_id" bson:"client_id"`
	ScheduledAt  time.Time `json:"scheduled_at" bson:"scheduled_at"`
	DurationMin  int       `json:"duration_min" bson:"duration_min"`
	Status       string    `json:"status" bson:"status"`
	ServiceType  string    `json:"service_type" bson:"service_type"`
	Notes        string    `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}

// BookingRequest is the validated input to a booking commit.
type BookingRequest struct {
	TherapistID       string    `json:"therapist_id" validate:"required"`
	ClientID          string    `json:"client_id" validate:"required"`
	ScheduledAt       time.Time `json:"scheduled_at" validate:"required"`
	DurationMin       int       `json:"duration_min" validate:"required,min=15,max=480"`
	ServiceType       string    `json:"service_type" validate:"required,min=2,max=100"`
	Notes             string    `json:"notes,omitempty" validate:"omitempty,max=2000"`
	QuestionnaireDone bool      `json:"questionnaire_done"`
}
