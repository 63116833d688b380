package session

import (
	"context"
	"time"

	"serein/internal/notifier"
	apperrors "serein/pkg/errors"
	"serein/pkg/model"
)

// Subscription and Subscriber mirror the notifier's surface so a flow can
// be driven against an in-memory event source in tests.
type Subscription interface {
	Events() <-chan model.AvailabilityChangeEvent
	Unsubscribe()
}

type Subscriber interface {
	Subscribe(ctx context.Context, therapistID string, date time.Time) (Subscription, error)
}

type notifierSubscriber struct {
	inner *notifier.Subscriber
}

func NewNotifierSubscriber(s *notifier.Subscriber) Subscriber {
	return &notifierSubscriber{inner: s}
}

func (n *notifierSubscriber) Subscribe(ctx context.Context, therapistID string, date time.Time) (Subscription, error) {
	sub, err := n.inner.Subscribe(ctx, therapistID, date)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// pumpEvents consumes the subscription until its channel closes. Every
// event triggers a re-resolution; a booked event matching the flow's own
// selection from another actor forces deselection first.
func (f *Flow) pumpEvents(sub Subscription, done chan struct{}) {
	defer close(done)

	for event := range sub.Events() {
		f.handleEvent(event)
	}

	f.mu.Lock()
	current := f.sub == sub
	if current {
		f.sub = nil
	}
	disposed := f.disposed
	f.mu.Unlock()

	if current && !disposed {
		f.cfg.Log.Warn("Availability watch closed, falling back to on-demand resolution",
			"client_id", f.clientID,
			"error", apperrors.Subscription("availability subscription closed", nil),
		)
	}
}

func (f *Flow) handleEvent(event model.AvailabilityChangeEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), f.cfg.RequestTimeout)
	defer cancel()

	f.mu.Lock()
	selected := f.selectedSlot
	lost := event.ChangeType == model.ChangeBooked &&
		!selected.IsZero() &&
		event.SlotDatetime.Equal(selected) &&
		event.ActorID != f.clientID
	cbLost := f.callbacks.OnSelectionLost
	f.mu.Unlock()

	if lost {
		f.dropSelection(ctx)
		if cbLost != nil {
			cbLost()
		}
	}
	f.refreshSlots(ctx)
}

// stopWatch closes the current subscription and waits for its pump to
// drain. No-op when no watch is open.
func (f *Flow) stopWatch() {
	f.mu.Lock()
	sub := f.sub
	done := f.pumpDone
	f.sub = nil
	f.pumpDone = nil
	f.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	if done != nil {
		<-done
	}
}

// startRenewer begins renewing the held lock at the configured fraction of
// its TTL. Caller holds f.mu and has already stopped any previous renewer.
func (f *Flow) startRenewer() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	f.renewCancel = cancel
	f.renewDone = done
	go f.renewLoop(ctx, done)
}

func (f *Flow) renewLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(f.cfg.RenewInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.renewOnce(ctx)
		}
	}
}

// renewOnce re-acquires the held lock, which extends its lease. Failures
// retry on a short delay; if every attempt fails the warning callback
// fires so the surface can tell the client the hold may lapse.
func (f *Flow) renewOnce(ctx context.Context) {
	f.mu.Lock()
	lock := f.heldLock
	f.mu.Unlock()
	if lock == nil {
		return
	}

	var lastErr error
	for attempt := 1; attempt <= f.cfg.LockRenewMaxAttempts; attempt++ {
		renewed, err := f.locks.Acquire(ctx, lock.TherapistID, lock.SlotDatetime, f.clientID)
		if err == nil {
			f.mu.Lock()
			if f.heldLock != nil {
				f.heldLock = renewed
			}
			f.mu.Unlock()
			return
		}
		lastErr = err

		// Contention here means the lease already lapsed and someone
		// else took the slot; retrying cannot win it back.
		if apperrors.HasCode(err, apperrors.CodeSlotContended) {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(f.cfg.LockRenewRetryDelay):
		}
	}

	f.cfg.Log.Warn("Slot lock renewal failing, hold may lapse",
		"therapist_id", lock.TherapistID,
		"slot_datetime", lock.SlotDatetime,
		"error", lastErr,
	)

	f.mu.Lock()
	cb := f.callbacks.OnLockWarning
	f.mu.Unlock()
	if cb != nil {
		cb(lastErr)
	}
}

func (f *Flow) stopRenewer() {
	f.mu.Lock()
	cancel := f.renewCancel
	done := f.renewDone
	f.renewCancel = nil
	f.renewDone = nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
