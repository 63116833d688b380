package service

import (
	"context"
	"errors"
	"time"

	lockerrors "serein/internal/locks/errors"
	"serein/internal/locks/repository"
	"serein/pkg/config"
	apperrors "serein/pkg/errors"
	"serein/pkg/model"
)

// EventPublisher broadcasts slot-state changes to subscribed clients.
type EventPublisher interface {
	Publish(ctx context.Context, event model.AvailabilityChangeEvent) error
}

// LockManager hands out short-lived exclusive holds on (therapist, slot
// datetime) pairs. Renewal is acquisition by the current owner; it never
// contends with itself.
type LockManager interface {
	Acquire(ctx context.Context, therapistID string, slotTime time.Time, requesterID string) (*model.SlotLock, error)
	Release(ctx context.Context, therapistID string, slotTime time.Time, requesterID string) error
}

type lockService struct {
	repo      repository.SlotLockRepository
	publisher EventPublisher
	cfg       *config.Config
	now       func() time.Time
}

func NewLockService(repo repository.SlotLockRepository, publisher EventPublisher, cfg *config.Config) LockManager {
	return &lockService{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *lockService) Acquire(ctx context.Context, therapistID string, slotTime time.Time, requesterID string) (*model.SlotLock, error) {
	if therapistID == "" || requesterID == "" || slotTime.IsZero() {
		return nil, apperrors.Validation("therapist, slot time, and requester are required", nil)
	}

	slotTime = normalizeSlotTime(slotTime)
	now := s.now().UTC()

	lock, err := s.repo.Acquire(ctx, therapistID, slotTime, requesterID, now, s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, lockerrors.ErrContended) {
			s.cfg.Log.Info("Slot lock contended",
				"therapist_id", therapistID,
				"slot_datetime", slotTime,
				"requester_id", requesterID,
			)
			return nil, apperrors.SlotContended("This time slot was just taken by another client")
		}
		s.cfg.Log.Error("Failed to acquire slot lock",
			"therapist_id", therapistID,
			"slot_datetime", slotTime,
			"error", err,
		)
		return nil, apperrors.TransientStorage("Failed to acquire slot lock", err)
	}

	s.publish(ctx, model.AvailabilityChangeEvent{
		TherapistID:  therapistID,
		SlotDatetime: slotTime,
		ChangeType:   model.ChangeLocked,
		ActorID:      requesterID,
		OccurredAt:   now,
	})

	s.cfg.Log.Info("Slot lock acquired",
		"therapist_id", therapistID,
		"slot_datetime", slotTime,
		"requester_id", requesterID,
		"expires_at", lock.ExpiresAt,
	)
	return lock, nil
}

// Release is idempotent: a missing, expired, or already-released lock is a
// no-op success. Only an actual deletion publishes an unlocked event.
func (s *lockService) Release(ctx context.Context, therapistID string, slotTime time.Time, requesterID string) error {
	if therapistID == "" || requesterID == "" || slotTime.IsZero() {
		return apperrors.Validation("therapist, slot time, and requester are required", nil)
	}

	slotTime = normalizeSlotTime(slotTime)

	released, err := s.repo.Release(ctx, therapistID, slotTime, requesterID)
	if err != nil {
		s.cfg.Log.Error("Failed to release slot lock",
			"therapist_id", therapistID,
			"slot_datetime", slotTime,
			"error", err,
		)
		return apperrors.TransientStorage("Failed to release slot lock", err)
	}

	if released {
		s.publish(ctx, model.AvailabilityChangeEvent{
			TherapistID:  therapistID,
			SlotDatetime: slotTime,
			ChangeType:   model.ChangeUnlocked,
			ActorID:      requesterID,
			OccurredAt:   s.now().UTC(),
		})
	}

	return nil
}

// publish is best-effort. A lost event is self-healing because viewers
// re-resolve availability rather than patching deltas.
func (s *lockService) publish(ctx context.Context, event model.AvailabilityChangeEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.cfg.Log.Warn("Failed to publish availability change",
			"therapist_id", event.TherapistID,
			"change_type", event.ChangeType,
			"error", err,
		)
	}
}

func normalizeSlotTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}
