package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	bookingerrors "serein/internal/bookings/errors"
	"serein/internal/bookings/repository"
	"serein/internal/bookings/validator"
	"serein/pkg/config"
	apperrors "serein/pkg/errors"
	"serein/pkg/model"
)

// LockReleaser is the slice of the lock manager the committer needs: after
// a successful commit the committer's own hold on the slot is released.
type LockReleaser interface {
	Release(ctx context.Context, therapistID string, slotTime time.Time, requesterID string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event model.AvailabilityChangeEvent) error
}

type Committer interface {
	Commit(ctx context.Context, req *model.BookingRequest) (*model.Booking, error)
	GetBooking(ctx context.Context, bookingID string) (*model.Booking, error)
	ListClientBookings(ctx context.Context, clientID string, limit, offset int) ([]*model.Booking, error)
}

type bookingService struct {
	repo      repository.BookingRepository
	validator *validator.BookingValidator
	locks     LockReleaser
	publisher EventPublisher
	cfg       *config.Config
	now       func() time.Time
}

func NewBookingService(repo repository.BookingRepository, v *validator.BookingValidator, locks LockReleaser, publisher EventPublisher, cfg *config.Config) Committer {
	return &bookingService{
		repo:      repo,
		validator: v,
		locks:     locks,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Commit turns a validated request into a durable booking. The write is
// exclusive: at most one non-cancelled booking per (therapist,
// scheduled_at), enforced transactionally with the partial unique index as
// backstop. On any failure the caller's slot lock is left untouched so a
// retry stays possible; on success the lock is released best-effort, since
// the booking row itself now blocks the slot.
func (s *bookingService) Commit(ctx context.Context, req *model.BookingRequest) (*model.Booking, error) {
	if err := s.validator.Validate(req); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			details := make(map[string]any, len(vErrs))
			for _, ve := range vErrs {
				details[ve.Field] = ve.Message
			}
			return nil, apperrors.Validation("booking request is invalid", details)
		}
		return nil, apperrors.Validation(err.Error(), nil)
	}

	scheduledAt := req.ScheduledAt.UTC().Truncate(time.Minute)
	booking := &model.Booking{
		ID:          uuid.NewString(),
		TherapistID: req.TherapistID,
		ClientID:    req.ClientID,
		ScheduledAt: scheduledAt,
		DurationMin: req.DurationMin,
		Status:      model.BookingStatusPending,
		ServiceType: req.ServiceType,
		Notes:       req.Notes,
		CreatedAt:   s.now(),
	}

	if err := s.repo.CreateExclusive(ctx, booking); err != nil {
		if errors.Is(err, bookingerrors.ErrAlreadyBooked) {
			return nil, apperrors.SlotAlreadyBooked("slot is already booked")
		}
		s.cfg.Log.Error("Failed to commit booking",
			"therapist_id", req.TherapistID,
			"scheduled_at", scheduledAt,
			"error", err,
		)
		return nil, apperrors.TransientStorage("failed to commit booking", err)
	}

	if err := s.locks.Release(ctx, req.TherapistID, scheduledAt, req.ClientID); err != nil {
		s.cfg.Log.Warn("Failed to release slot lock after commit",
			"therapist_id", req.TherapistID,
			"scheduled_at", scheduledAt,
			"error", err,
		)
	}

	s.publishBooked(ctx, booking)

	s.cfg.Log.Info("Booking committed",
		"booking_id", booking.ID,
		"therapist_id", booking.TherapistID,
		"scheduled_at", booking.ScheduledAt,
	)
	return booking, nil
}

func (s *bookingService) GetBooking(ctx context.Context, bookingID string) (*model.Booking, error) {
	if bookingID == "" {
		return nil, apperrors.Validation("booking id is required", nil)
	}

	booking, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, bookingerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("booking", bookingID)
		}
		return nil, apperrors.TransientStorage("failed to load booking", err)
	}

	return booking, nil
}

func (s *bookingService) ListClientBookings(ctx context.Context, clientID string, limit, offset int) ([]*model.Booking, error) {
	if clientID == "" {
		return nil, apperrors.Validation("client id is required", nil)
	}

	bookings, err := s.repo.ListByClient(ctx, clientID, limit, offset)
	if err != nil {
		return nil, apperrors.TransientStorage("failed to list bookings", err)
	}

	return bookings, nil
}

func (s *bookingService) publishBooked(ctx context.Context, booking *model.Booking) {
	event := model.AvailabilityChangeEvent{
		TherapistID:  booking.TherapistID,
		SlotDatetime: booking.ScheduledAt,
		ChangeType:   model.ChangeBooked,
		ActorID:      booking.ClientID,
		OccurredAt:   s.now(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.cfg.Log.Warn("Failed to publish booked event",
			"therapist_id", booking.TherapistID,
			"slot_datetime", booking.ScheduledAt,
			"error", err,
		)
	}
}
