package session

import (
	"context"
	"sync"
	"time"

	"serein/internal/bookings/validator"
	"serein/pkg/config"
	apperrors "serein/pkg/errors"
	"serein/pkg/model"
)

type State string

const (
	StateSelectingService       State = "selecting_service"
	StateAnsweringQuestionnaire State = "answering_questionnaire"
	StateSelectingTherapist     State = "selecting_therapist"
	StateSelectingDate          State = "selecting_date"
	StateSelectingTime          State = "selecting_time"
	StateConfirming             State = "confirming"
	StateCompleted              State = "completed"
)

// SlotResolver, LockManager, Committer and Directory are the slices of the
// domain services one booking flow drives.
type SlotResolver interface {
	Resolve(ctx context.Context, therapistID string, date time.Time, requesterID string) ([]model.Slot, error)
}

type LockManager interface {
	Acquire(ctx context.Context, therapistID string, slotTime time.Time, requesterID string) (*model.SlotLock, error)
	Release(ctx context.Context, therapistID string, slotTime time.Time, requesterID string) error
}

type Committer interface {
	Commit(ctx context.Context, req *model.BookingRequest) (*model.Booking, error)
}

type Directory interface {
	GetTherapist(ctx context.Context, therapistID string) (*model.Therapist, error)
	ListAccepting(ctx context.Context, serviceType string, limit, offset int) ([]*model.Therapist, error)
}

// Callbacks lets the surface driving the flow react to background changes:
// fresh slot lists, a selection stolen by another client, and lock renewal
// trouble before the hold lapses.
type Callbacks struct {
	OnSlotsChanged  func(slots []model.Slot)
	OnSelectionLost func()
	OnLockWarning   func(err error)
}

// Flow is one client's walk to a confirmed booking. All state transitions
// go through the flow's mutex; background goroutines (the event pump and
// the lock renewer) mutate the flow only through the same lock. Every exit
// path must end in Dispose, which releases whatever the flow still holds.
type Flow struct {
	cfg        *config.Config
	resolver   SlotResolver
	locks      LockManager
	committer  Committer
	directory  Directory
	subscriber Subscriber
	callbacks  Callbacks

	clientID string
	now      func() time.Time

	mu                sync.Mutex
	state             State
	serviceType       string
	questionnaireDone bool
	therapistID       string
	date              time.Time
	slots             []model.Slot
	selectedSlot      time.Time
	heldLock          *model.SlotLock

	sub         Subscription
	pumpDone    chan struct{}
	renewCancel context.CancelFunc
	renewDone   chan struct{}
	disposed    bool
}

func NewFlow(clientID string, resolver SlotResolver, locks LockManager, committer Committer, directory Directory, subscriber Subscriber, callbacks Callbacks, cfg *config.Config) *Flow {
	return &Flow{
		cfg:        cfg,
		resolver:   resolver,
		locks:      locks,
		committer:  committer,
		directory:  directory,
		subscriber: subscriber,
		callbacks:  callbacks,
		clientID:   clientID,
		now:        time.Now,
		state:      StateSelectingService,
	}
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Slots returns the flow's last resolved slot list.
func (f *Flow) Slots() []model.Slot {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Slot, len(f.slots))
	copy(out, f.slots)
	return out
}

func (f *Flow) requireState(want ...State) error {
	for _, s := range want {
		if f.state == s {
			return nil
		}
	}
	return apperrors.Validation("operation not allowed in current step", map[string]any{
		"state": string(f.state),
	})
}

// SelectService picks the service type. Service types behind the intake
// gate detour through the questionnaire step first.
func (f *Flow) SelectService(serviceType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.requireState(StateSelectingService); err != nil {
		return err
	}
	if serviceType == "" {
		return apperrors.Validation("service type is required", nil)
	}

	f.serviceType = serviceType
	if validator.RequiresIntake(serviceType) && !f.questionnaireDone {
		f.state = StateAnsweringQuestionnaire
	} else {
		f.state = StateSelectingTherapist
	}
	return nil
}

func (f *Flow) CompleteQuestionnaire() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.requireState(StateAnsweringQuestionnaire); err != nil {
		return err
	}
	f.questionnaireDone = true
	f.state = StateSelectingTherapist
	return nil
}

// ListTherapists surfaces the accepting therapists for the chosen service.
func (f *Flow) ListTherapists(ctx context.Context, limit, offset int) ([]*model.Therapist, error) {
	f.mu.Lock()
	if err := f.requireState(StateSelectingTherapist); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	serviceType := f.serviceType
	f.mu.Unlock()

	return f.directory.ListAccepting(ctx, serviceType, limit, offset)
}

func (f *Flow) SelectTherapist(ctx context.Context, therapistID string) error {
	f.mu.Lock()
	if err := f.requireState(StateSelectingTherapist); err != nil {
		f.mu.Unlock()
		return err
	}
	serviceType := f.serviceType
	f.mu.Unlock()

	therapist, err := f.directory.GetTherapist(ctx, therapistID)
	if err != nil {
		return err
	}
	if !therapist.Accepting {
		return apperrors.Validation("therapist is not accepting new clients", map[string]any{
			"therapist_id": therapistID,
		})
	}
	if !therapist.Offers(serviceType) {
		return apperrors.Validation("therapist does not offer the selected service", map[string]any{
			"therapist_id": therapistID,
			"service_type": serviceType,
		})
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.requireState(StateSelectingTherapist); err != nil {
		return err
	}
	f.therapistID = therapistID
	f.state = StateSelectingDate
	return nil
}

// SelectDate resolves the day's slots and opens the availability watch for
// the chosen therapist-day. Re-selecting a date tears down the previous
// watch first.
func (f *Flow) SelectDate(ctx context.Context, date time.Time) error {
	f.mu.Lock()
	if err := f.requireState(StateSelectingDate, StateSelectingTime); err != nil {
		f.mu.Unlock()
		return err
	}
	if date.IsZero() {
		f.mu.Unlock()
		return apperrors.Validation("date is required", nil)
	}
	therapistID := f.therapistID
	f.mu.Unlock()

	f.releaseSelection(ctx)
	f.stopWatch()

	slots, err := f.resolver.Resolve(ctx, therapistID, date, f.clientID)
	if err != nil {
		return err
	}

	sub, err := f.subscriber.Subscribe(ctx, therapistID, date)
	if err != nil {
		// Degraded mode: the flow still works, the client just has to
		// re-resolve by hand instead of being pushed fresh slots.
		f.cfg.Log.Warn("Availability subscription unavailable, continuing without live updates",
			"therapist_id", therapistID,
			"error", apperrors.Subscription("failed to subscribe", err),
		)
		sub = nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.date = date
	f.slots = slots
	f.state = StateSelectingTime
	if sub != nil {
		f.sub = sub
		f.pumpDone = make(chan struct{})
		go f.pumpEvents(f.sub, f.pumpDone)
	}
	return nil
}

// SelectTime takes the exclusive hold on a slot. Changing a previous
// selection releases its lock first. A contended slot resets the selection
// and surfaces SLOT_CONTENDED without advancing the flow.
func (f *Flow) SelectTime(ctx context.Context, slotTime time.Time) error {
	f.mu.Lock()
	if err := f.requireState(StateSelectingTime, StateConfirming); err != nil {
		f.mu.Unlock()
		return err
	}
	therapistID := f.therapistID
	f.mu.Unlock()

	f.releaseSelection(ctx)

	lock, err := f.locks.Acquire(ctx, therapistID, slotTime, f.clientID)
	if err != nil {
		f.mu.Lock()
		f.state = StateSelectingTime
		f.mu.Unlock()
		if apperrors.HasCode(err, apperrors.CodeSlotContended) {
			f.refreshSlots(ctx)
		}
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.selectedSlot = lock.SlotDatetime
	f.heldLock = lock
	f.state = StateConfirming
	f.startRenewer()
	return nil
}

// Confirm commits the booking. Losing the slot to a concurrent booking
// returns the flow to time selection with slots re-resolved; any other
// failure keeps the flow in Confirming with the lock intact.
func (f *Flow) Confirm(ctx context.Context, durationMin int, notes string) (*model.Booking, error) {
	f.mu.Lock()
	if err := f.requireState(StateConfirming); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	req := &model.BookingRequest{
		TherapistID:       f.therapistID,
		ClientID:          f.clientID,
		ScheduledAt:       f.selectedSlot,
		DurationMin:       durationMin,
		ServiceType:       f.serviceType,
		Notes:             notes,
		QuestionnaireDone: f.questionnaireDone,
	}
	f.mu.Unlock()

	booking, err := f.committer.Commit(ctx, req)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeSlotAlreadyBooked) {
			f.dropSelection(ctx)
			f.refreshSlots(ctx)
		}
		return nil, err
	}

	f.stopRenewer()
	f.stopWatch()

	// The committer released the lock as part of the successful commit,
	// but a renew tick racing the commit can re-acquire it before the
	// renewer stops. Release again so no orphan row outlives the booking.
	if err := f.locks.Release(ctx, req.TherapistID, req.ScheduledAt, f.clientID); err != nil {
		f.cfg.Log.Warn("Failed to release slot lock after commit",
			"therapist_id", req.TherapistID,
			"slot_datetime", req.ScheduledAt,
			"error", err,
		)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.heldLock = nil
	f.selectedSlot = time.Time{}
	f.state = StateCompleted
	return booking, nil
}

// Dispose tears the flow down: renewer stopped, watch closed, any held
// lock released. Safe to call on every exit path, including after
// Completed, and more than once.
func (f *Flow) Dispose() {
	f.mu.Lock()
	if f.disposed {
		f.mu.Unlock()
		return
	}
	f.disposed = true
	f.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), f.cfg.RequestTimeout)
	defer cancel()

	f.releaseSelection(ctx)
	f.stopWatch()
}

// releaseSelection stops the renewer and gives back the held lock, if any.
func (f *Flow) releaseSelection(ctx context.Context) {
	f.stopRenewer()

	f.mu.Lock()
	lock := f.heldLock
	f.heldLock = nil
	f.selectedSlot = time.Time{}
	f.mu.Unlock()

	if lock == nil {
		return
	}
	if err := f.locks.Release(ctx, lock.TherapistID, lock.SlotDatetime, f.clientID); err != nil {
		f.cfg.Log.Warn("Failed to release slot lock",
			"therapist_id", lock.TherapistID,
			"slot_datetime", lock.SlotDatetime,
			"error", err,
		)
	}
}

// dropSelection abandons the selection without trying to keep the slot:
// used when the slot was booked out from under the flow. The lock release
// is still attempted so an orphaned hold does not linger for its full TTL.
func (f *Flow) dropSelection(ctx context.Context) {
	f.releaseSelection(ctx)
	f.mu.Lock()
	f.state = StateSelectingTime
	f.mu.Unlock()
}

// refreshSlots re-resolves the current therapist-day and notifies the
// surface. Resolution failures are logged and keep the previous list; the
// next event or manual retry heals the view.
func (f *Flow) refreshSlots(ctx context.Context) {
	f.mu.Lock()
	therapistID, date := f.therapistID, f.date
	f.mu.Unlock()
	if therapistID == "" || date.IsZero() {
		return
	}

	slots, err := f.resolver.Resolve(ctx, therapistID, date, f.clientID)
	if err != nil {
		f.cfg.Log.Warn("Failed to re-resolve slots",
			"therapist_id", therapistID,
			"error", err,
		)
		return
	}

	f.mu.Lock()
	f.slots = slots
	cb := f.callbacks.OnSlotsChanged
	f.mu.Unlock()

	if cb != nil {
		cb(slots)
	}
}
