package model

import "time"

// SlotLock is a short-lived exclusive hold on one (therapist, slot
// datetime) pair. At most one non-expired lock may exist per pair; the
// unique index on those two fields is what enforces it under concurrency.
// An expired lock is treated as absent by every reader even before the TTL
// monitor physically removes it.
type SlotLock struct {
	TherapistID  string    `json:"therapist_id" bson:"therapist_id"`
	SlotDatetime time.Time `json:"slot_datetime" bson:"slot_datetime"`
	LockedBy     string    `json:"locked_by" bson:"locked_by"`
	AcquiredAt   time.Time `json:"acquired_at" bson:"acquired_at"`
	ExpiresAt    time.Time `json:"expires_at" bson:"expires_at"`
}

// Active reports whether the lock is still live at the given instant.
func (l *SlotLock) Active(now time.Time) bool {
	return now.Before(l.ExpiresAt)
}

// HeldBy reports whether the lock is live and owned by userID.
func (l *SlotLock) HeldBy(userID string, now time.Time) bool {
	return l.LockedBy == userID && l.Active(now)
}
