package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"serein/pkg/config"
	apperrors "serein/pkg/errors"
	"serein/pkg/logger"
	"serein/pkg/model"
)

// fakeLocks implements the same conditional-write semantics as the real
// lock storage, under one mutex, so two flows can genuinely contend.
type fakeLocks struct {
	mu    sync.Mutex
	locks map[string]*model.SlotLock
	ttl   time.Duration

	acquireCalls int
	acquireErr   error
}

func newFakeLocks(ttl time.Duration) *fakeLocks {
	return &fakeLocks{locks: make(map[string]*model.SlotLock), ttl: ttl}
}

func fakeLockKey(therapistID string, slotTime time.Time) string {
	return therapistID + "|" + slotTime.UTC().Format(time.RFC3339)
}

func (l *fakeLocks) Acquire(_ context.Context, therapistID string, slotTime time.Time, requesterID string) (*model.SlotLock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.acquireCalls++
	if l.acquireErr != nil {
		return nil, l.acquireErr
	}

	now := time.Now()
	key := fakeLockKey(therapistID, slotTime)
	if existing, ok := l.locks[key]; ok && existing.LockedBy != requesterID && now.Before(existing.ExpiresAt) {
		return nil, apperrors.SlotContended("slot is held by another client")
	}

	lock := &model.SlotLock{
		TherapistID:  therapistID,
		SlotDatetime: slotTime.UTC().Truncate(time.Minute),
		LockedBy:     requesterID,
		AcquiredAt:   now,
		ExpiresAt:    now.Add(l.ttl),
	}
	l.locks[key] = lock
	return lock, nil
}

func (l *fakeLocks) Release(_ context.Context, therapistID string, slotTime time.Time, requesterID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := fakeLockKey(therapistID, slotTime)
	if existing, ok := l.locks[key]; ok && existing.LockedBy == requesterID {
		delete(l.locks, key)
	}
	return nil
}

func (l *fakeLocks) holder(therapistID string, slotTime time.Time) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lock, ok := l.locks[fakeLockKey(therapistID, slotTime)]; ok && time.Now().Before(lock.ExpiresAt) {
		return lock.LockedBy
	}
	return ""
}

func (l *fakeLocks) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquireCalls
}

type fakeResolver struct {
	mu    sync.Mutex
	slots []model.Slot
	calls int
}

func (r *fakeResolver) Resolve(_ context.Context, therapistID string, _ time.Time, _ string) ([]model.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	out := make([]model.Slot, len(r.slots))
	copy(out, r.slots)
	return out, nil
}

func (r *fakeResolver) resolveCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeCommitter struct {
	mu         sync.Mutex
	locks      *fakeLocks
	commitErr  error
	committed  []*model.BookingRequest
	postCommit func(ctx context.Context, req *model.BookingRequest)
}

func (c *fakeCommitter) Commit(ctx context.Context, req *model.BookingRequest) (*model.Booking, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.commitErr != nil {
		return nil, c.commitErr
	}
	c.committed = append(c.committed, req)
	if c.locks != nil {
		c.locks.Release(ctx, req.TherapistID, req.ScheduledAt, req.ClientID)
	}
	if c.postCommit != nil {
		c.postCommit(ctx, req)
	}
	return &model.Booking{
		ID:          "booking-1",
		TherapistID: req.TherapistID,
		ClientID:    req.ClientID,
		ScheduledAt: req.ScheduledAt,
		Status:      model.BookingStatusPending,
	}, nil
}

type fakeDirectory struct {
	therapists map[string]*model.Therapist
}

func (d *fakeDirectory) GetTherapist(_ context.Context, therapistID string) (*model.Therapist, error) {
	if t, ok := d.therapists[therapistID]; ok {
		return t, nil
	}
	return nil, apperrors.NotFoundWithID("therapist", therapistID)
}

func (d *fakeDirectory) ListAccepting(_ context.Context, serviceType string, _, _ int) ([]*model.Therapist, error) {
	var out []*model.Therapist
	for _, t := range d.therapists {
		if t.Accepting && (serviceType == "" || t.Offers(serviceType)) {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeSubscription struct {
	ch        chan model.AvailabilityChangeEvent
	closeOnce sync.Once
}

func (s *fakeSubscription) Events() <-chan model.AvailabilityChangeEvent { return s.ch }

func (s *fakeSubscription) Unsubscribe() {
	s.closeOnce.Do(func() { close(s.ch) })
}

func (s *fakeSubscription) push(event model.AvailabilityChangeEvent) {
	s.ch <- event
}

type fakeSubscriber struct {
	mu   sync.Mutex
	subs []*fakeSubscription
	err  error
}

func (f *fakeSubscriber) Subscribe(context.Context, string, time.Time) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	sub := &fakeSubscription{ch: make(chan model.AvailabilityChangeEvent, 16)}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeSubscriber) last() *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

func flowConfig() *config.Config {
	return &config.Config{
		LockTTL:              200 * time.Millisecond,
		LockRenewFraction:    0.5,
		LockRenewMaxAttempts: 2,
		LockRenewRetryDelay:  5 * time.Millisecond,
		RequestTimeout:       time.Second,
		Log:                  logger.New(logger.Config{Level: "error", Format: logger.JSON, Service: "test"}),
	}
}

var (
	flowDate = time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)
	flowSlot = flowDate.Add(10 * time.Hour)
)

func flowTherapist() *model.Therapist {
	return &model.Therapist{
		ID:                 "therapist-1",
		Name:               "Dr. Ayala",
		ServiceTypes:       []string{"individual_therapy", "initial_consultation"},
		SessionDurationMin: 60,
		Accepting:          true,
	}
}

type testEnv struct {
	locks      *fakeLocks
	resolver   *fakeResolver
	committer  *fakeCommitter
	directory  *fakeDirectory
	subscriber *fakeSubscriber
	cfg        *config.Config
}

func newTestEnv() *testEnv {
	locks := newFakeLocks(200 * time.Millisecond)
	return &testEnv{
		locks:    locks,
		resolver: &fakeResolver{slots: []model.Slot{{TherapistID: "therapist-1", StartTime: flowSlot, DurationMin: 60, Available: true}}},
		committer: &fakeCommitter{locks: locks},
		directory: &fakeDirectory{therapists: map[string]*model.Therapist{
			"therapist-1": flowTherapist(),
		}},
		subscriber: &fakeSubscriber{},
		cfg:        flowConfig(),
	}
}

func (e *testEnv) newFlow(clientID string, callbacks Callbacks) *Flow {
	return NewFlow(clientID, e.resolver, e.locks, e.committer, e.directory, e.subscriber, callbacks, e.cfg)
}

// advance walks a flow up to time selection.
func advanceToSelectingTime(t *testing.T, f *Flow) {
	t.Helper()
	ctx := context.Background()
	if err := f.SelectService("individual_therapy"); err != nil {
		t.Fatalf("SelectService: %v", err)
	}
	if err := f.SelectTherapist(ctx, "therapist-1"); err != nil {
		t.Fatalf("SelectTherapist: %v", err)
	}
	if err := f.SelectDate(ctx, flowDate); err != nil {
		t.Fatalf("SelectDate: %v", err)
	}
	if got := f.State(); got != StateSelectingTime {
		t.Fatalf("expected selecting_time, got %s", got)
	}
}

func TestFlow_GuardsForwardTransitions(t *testing.T) {
	env := newTestEnv()
	f := env.newFlow("client-1", Callbacks{})
	defer f.Dispose()
	ctx := context.Background()

	if err := f.SelectTherapist(ctx, "therapist-1"); !apperrors.HasCode(err, apperrors.CodeValidationFailed) {
		t.Errorf("therapist before service: expected VALIDATION_FAILED, got %v", err)
	}
	if err := f.SelectDate(ctx, flowDate); !apperrors.HasCode(err, apperrors.CodeValidationFailed) {
		t.Errorf("date before therapist: expected VALIDATION_FAILED, got %v", err)
	}
	if err := f.SelectTime(ctx, flowSlot); !apperrors.HasCode(err, apperrors.CodeValidationFailed) {
		t.Errorf("time before date: expected VALIDATION_FAILED, got %v", err)
	}
	if _, err := f.Confirm(ctx, 60, ""); !apperrors.HasCode(err, apperrors.CodeValidationFailed) {
		t.Errorf("confirm before selection: expected VALIDATION_FAILED, got %v", err)
	}
	if err := f.CompleteQuestionnaire(); !apperrors.HasCode(err, apperrors.CodeValidationFailed) {
		t.Errorf("questionnaire outside its step: expected VALIDATION_FAILED, got %v", err)
	}
}

func TestFlow_QuestionnaireGate(t *testing.T) {
	env := newTestEnv()
	f := env.newFlow("client-1", Callbacks{})
	defer f.Dispose()

	if err := f.SelectService("initial_consultation"); err != nil {
		t.Fatalf("SelectService: %v", err)
	}
	if got := f.State(); got != StateAnsweringQuestionnaire {
		t.Fatalf("gated service must detour to questionnaire, got %s", got)
	}
	if err := f.CompleteQuestionnaire(); err != nil {
		t.Fatalf("CompleteQuestionnaire: %v", err)
	}
	if got := f.State(); got != StateSelectingTherapist {
		t.Fatalf("expected selecting_therapist, got %s", got)
	}
}

func TestFlow_UngatedServiceSkipsQuestionnaire(t *testing.T) {
	env := newTestEnv()
	f := env.newFlow("client-1", Callbacks{})
	defer f.Dispose()

	if err := f.SelectService("individual_therapy"); err != nil {
		t.Fatalf("SelectService: %v", err)
	}
	if got := f.State(); got != StateSelectingTherapist {
		t.Fatalf("expected selecting_therapist, got %s", got)
	}
}

func TestFlow_SelectTherapistValidatesOffer(t *testing.T) {
	env := newTestEnv()
	env.directory.therapists["therapist-2"] = &model.Therapist{
		ID:           "therapist-2",
		ServiceTypes: []string{"couples_therapy"},
		Accepting:    true,
	}
	env.directory.therapists["therapist-3"] = &model.Therapist{
		ID:           "therapist-3",
		ServiceTypes: []string{"individual_therapy"},
		Accepting:    false,
	}
	f := env.newFlow("client-1", Callbacks{})
	defer f.Dispose()
	ctx := context.Background()

	if err := f.SelectService("individual_therapy"); err != nil {
		t.Fatalf("SelectService: %v", err)
	}
	if err := f.SelectTherapist(ctx, "therapist-2"); !apperrors.HasCode(err, apperrors.CodeValidationFailed) {
		t.Errorf("wrong service type: expected VALIDATION_FAILED, got %v", err)
	}
	if err := f.SelectTherapist(ctx, "therapist-3"); !apperrors.HasCode(err, apperrors.CodeValidationFailed) {
		t.Errorf("not accepting: expected VALIDATION_FAILED, got %v", err)
	}
	if got := f.State(); got != StateSelectingTherapist {
		t.Errorf("failed selection must not advance, got %s", got)
	}
}

func TestFlow_HappyPathToCompleted(t *testing.T) {
	env := newTestEnv()
	f := env.newFlow("client-1", Callbacks{})
	defer f.Dispose()
	ctx := context.Background()

	advanceToSelectingTime(t, f)

	if err := f.SelectTime(ctx, flowSlot); err != nil {
		t.Fatalf("SelectTime: %v", err)
	}
	if got := f.State(); got != StateConfirming {
		t.Fatalf("expected confirming, got %s", got)
	}
	if holder := env.locks.holder("therapist-1", flowSlot); holder != "client-1" {
		t.Fatalf("expected client-1 to hold the lock, got %q", holder)
	}

	booking, err := f.Confirm(ctx, 60, "first session")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if booking.ID == "" {
		t.Error("expected a booking id")
	}
	if got := f.State(); got != StateCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
	if holder := env.locks.holder("therapist-1", flowSlot); holder != "" {
		t.Errorf("lock must be released after commit, held by %q", holder)
	}
}

func TestFlow_ContendedTimeSelectionDoesNotAdvance(t *testing.T) {
	env := newTestEnv()
	other := env.newFlow("client-2", Callbacks{})
	defer other.Dispose()
	advanceToSelectingTime(t, other)
	ctx := context.Background()
	if err := other.SelectTime(ctx, flowSlot); err != nil {
		t.Fatalf("rival SelectTime: %v", err)
	}

	f := env.newFlow("client-1", Callbacks{})
	defer f.Dispose()
	advanceToSelectingTime(t, f)

	resolvesBefore := env.resolver.resolveCalls()
	err := f.SelectTime(ctx, flowSlot)
	if !apperrors.HasCode(err, apperrors.CodeSlotContended) {
		t.Fatalf("expected SLOT_CONTENDED, got %v", err)
	}
	if got := f.State(); got != StateSelectingTime {
		t.Errorf("contended selection must stay in selecting_time, got %s", got)
	}
	if env.resolver.resolveCalls() <= resolvesBefore {
		t.Error("contention must trigger a re-resolution")
	}
	if holder := env.locks.holder("therapist-1", flowSlot); holder != "client-2" {
		t.Errorf("rival's lock must survive, held by %q", holder)
	}
}

func TestFlow_ChangingSelectionReleasesOldLock(t *testing.T) {
	env := newTestEnv()
	f := env.newFlow("client-1", Callbacks{})
	defer f.Dispose()
	ctx := context.Background()

	advanceToSelectingTime(t, f)
	if err := f.SelectTime(ctx, flowSlot); err != nil {
		t.Fatalf("first SelectTime: %v", err)
	}

	secondSlot := flowSlot.Add(time.Hour)
	if err := f.SelectTime(ctx, secondSlot); err != nil {
		t.Fatalf("second SelectTime: %v", err)
	}

	if holder := env.locks.holder("therapist-1", flowSlot); holder != "" {
		t.Errorf("old lock must be released, held by %q", holder)
	}
	if holder := env.locks.holder("therapist-1", secondSlot); holder != "client-1" {
		t.Errorf("new lock must be held, got %q", holder)
	}
}

func TestFlow_ForeignBookedEventForcesDeselection(t *testing.T) {
	env := newTestEnv()
	var lost sync.WaitGroup
	lost.Add(1)
	f := env.newFlow("client-1", Callbacks{
		OnSelectionLost: func() { lost.Done() },
	})
	defer f.Dispose()
	ctx := context.Background()

	advanceToSelectingTime(t, f)
	if err := f.SelectTime(ctx, flowSlot); err != nil {
		t.Fatalf("SelectTime: %v", err)
	}

	env.subscriber.last().push(model.AvailabilityChangeEvent{
		TherapistID:  "therapist-1",
		SlotDatetime: flowSlot,
		ChangeType:   model.ChangeBooked,
		ActorID:      "client-2",
		OccurredAt:   time.Now(),
	})

	waitDone(t, &lost, time.Second, "selection-lost callback")
	if got := f.State(); got != StateSelectingTime {
		t.Errorf("expected forced return to selecting_time, got %s", got)
	}
}

func TestFlow_OwnBookedEventDoesNotDeselect(t *testing.T) {
	env := newTestEnv()
	f := env.newFlow("client-1", Callbacks{
		OnSelectionLost: func() { t.Error("own booked event must not fire selection-lost") },
	})
	defer f.Dispose()
	ctx := context.Background()

	advanceToSelectingTime(t, f)
	if err := f.SelectTime(ctx, flowSlot); err != nil {
		t.Fatalf("SelectTime: %v", err)
	}

	resolvesBefore := env.resolver.resolveCalls()
	env.subscriber.last().push(model.AvailabilityChangeEvent{
		TherapistID:  "therapist-1",
		SlotDatetime: flowSlot,
		ChangeType:   model.ChangeBooked,
		ActorID:      "client-1",
		OccurredAt:   time.Now(),
	})

	waitFor(t, time.Second, func() bool { return env.resolver.resolveCalls() > resolvesBefore })
	if got := f.State(); got != StateConfirming {
		t.Errorf("own event must not move the flow, got %s", got)
	}
}

func TestFlow_EventsTriggerReresolution(t *testing.T) {
	env := newTestEnv()
	var changed sync.WaitGroup
	changed.Add(2)
	f := env.newFlow("client-1", Callbacks{
		OnSlotsChanged: func([]model.Slot) { changed.Done() },
	})
	defer f.Dispose()

	advanceToSelectingTime(t, f)

	sub := env.subscriber.last()
	for _, changeType := range []string{model.ChangeLocked, model.ChangeUnlocked} {
		sub.push(model.AvailabilityChangeEvent{
			TherapistID:  "therapist-1",
			SlotDatetime: flowSlot,
			ChangeType:   changeType,
			ActorID:      "client-2",
			OccurredAt:   time.Now(),
		})
	}
	waitDone(t, &changed, time.Second, "slot change callbacks")
}

func TestFlow_ConfirmAlreadyBookedReturnsToTimeSelection(t *testing.T) {
	env := newTestEnv()
	f := env.newFlow("client-1", Callbacks{})
	defer f.Dispose()
	ctx := context.Background()

	advanceToSelectingTime(t, f)
	if err := f.SelectTime(ctx, flowSlot); err != nil {
		t.Fatalf("SelectTime: %v", err)
	}

	env.committer.commitErr = apperrors.SlotAlreadyBooked("slot is already booked")
	resolvesBefore := env.resolver.resolveCalls()
	_, err := f.Confirm(ctx, 60, "")
	if !apperrors.HasCode(err, apperrors.CodeSlotAlreadyBooked) {
		t.Fatalf("expected SLOT_ALREADY_BOOKED, got %v", err)
	}
	if got := f.State(); got != StateSelectingTime {
		t.Errorf("expected return to selecting_time, got %s", got)
	}
	if env.resolver.resolveCalls() <= resolvesBefore {
		t.Error("lost slot must trigger a re-resolution")
	}
}

func TestFlow_ConfirmReleasesLockReacquiredByRenewer(t *testing.T) {
	env := newTestEnv()
	f := env.newFlow("client-1", Callbacks{})
	defer f.Dispose()
	ctx := context.Background()

	advanceToSelectingTime(t, f)
	if err := f.SelectTime(ctx, flowSlot); err != nil {
		t.Fatalf("SelectTime: %v", err)
	}

	// A renew tick can fire between the commit's release and the renewer
	// stopping, re-creating the lock row for an already booked slot.
	env.committer.postCommit = func(ctx context.Context, req *model.BookingRequest) {
		if _, err := env.locks.Acquire(ctx, req.TherapistID, req.ScheduledAt, req.ClientID); err != nil {
			t.Errorf("renewal re-acquire: %v", err)
		}
	}

	if _, err := f.Confirm(ctx, 60, ""); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if got := env.locks.holder("therapist-1", flowSlot); got != "" {
		t.Errorf("expected no lock to survive the booking, still held by %q", got)
	}
}

func TestFlow_TransientCommitFailureKeepsLock(t *testing.T) {
	env := newTestEnv()
	f := env.newFlow("client-1", Callbacks{})
	defer f.Dispose()
	ctx := context.Background()

	advanceToSelectingTime(t, f)
	if err := f.SelectTime(ctx, flowSlot); err != nil {
		t.Fatalf("SelectTime: %v", err)
	}

	env.committer.commitErr = apperrors.TransientStorage("mongo unavailable", errors.New("connection reset"))
	_, err := f.Confirm(ctx, 60, "")
	if !apperrors.HasCode(err, apperrors.CodeTransientStorage) {
		t.Fatalf("expected TRANSIENT_STORAGE_FAILURE, got %v", err)
	}
	if got := f.State(); got != StateConfirming {
		t.Errorf("transient failure must keep the flow in confirming, got %s", got)
	}
	if holder := env.locks.holder("therapist-1", flowSlot); holder != "client-1" {
		t.Errorf("transient failure must keep the lock, held by %q", holder)
	}

	// Retry succeeds once storage recovers.
	env.committer.commitErr = nil
	if _, err := f.Confirm(ctx, 60, ""); err != nil {
		t.Fatalf("retry Confirm: %v", err)
	}
}

func TestFlow_RenewerExtendsHold(t *testing.T) {
	env := newTestEnv()
	f := env.newFlow("client-1", Callbacks{})
	defer f.Dispose()
	ctx := context.Background()

	advanceToSelectingTime(t, f)
	if err := f.SelectTime(ctx, flowSlot); err != nil {
		t.Fatalf("SelectTime: %v", err)
	}

	callsAfterSelect := env.locks.calls()
	// RenewInterval is 100ms here; across 350ms at least two renewals
	// must land, keeping the hold alive past the original 200ms TTL.
	time.Sleep(350 * time.Millisecond)
	if env.locks.calls() < callsAfterSelect+2 {
		t.Errorf("expected at least 2 renewals, got %d", env.locks.calls()-callsAfterSelect)
	}
	if holder := env.locks.holder("therapist-1", flowSlot); holder != "client-1" {
		t.Errorf("hold must outlive the original TTL, held by %q", holder)
	}

	if _, err := f.Confirm(ctx, 60, ""); err != nil {
		t.Fatalf("Confirm after renewals: %v", err)
	}
}

func TestFlow_RenewalFailureFiresWarning(t *testing.T) {
	env := newTestEnv()
	var warned sync.WaitGroup
	warned.Add(1)
	var once sync.Once
	f := env.newFlow("client-1", Callbacks{
		OnLockWarning: func(err error) {
			if err == nil {
				t.Error("warning callback must carry the renewal error")
			}
			once.Do(warned.Done)
		},
	})
	defer f.Dispose()
	ctx := context.Background()

	advanceToSelectingTime(t, f)
	if err := f.SelectTime(ctx, flowSlot); err != nil {
		t.Fatalf("SelectTime: %v", err)
	}

	env.locks.mu.Lock()
	env.locks.acquireErr = apperrors.TransientStorage("mongo unavailable", errors.New("connection reset"))
	env.locks.mu.Unlock()

	waitDone(t, &warned, 2*time.Second, "lock warning callback")
}

func TestFlow_DisposeReleasesEverything(t *testing.T) {
	env := newTestEnv()
	f := env.newFlow("client-1", Callbacks{})
	ctx := context.Background()

	advanceToSelectingTime(t, f)
	if err := f.SelectTime(ctx, flowSlot); err != nil {
		t.Fatalf("SelectTime: %v", err)
	}

	f.Dispose()
	f.Dispose()

	if holder := env.locks.holder("therapist-1", flowSlot); holder != "" {
		t.Errorf("dispose must release the lock, held by %q", holder)
	}

	// The watch is closed, so a rival can take the slot immediately.
	rival := env.newFlow("client-2", Callbacks{})
	defer rival.Dispose()
	advanceToSelectingTime(t, rival)
	if err := rival.SelectTime(ctx, flowSlot); err != nil {
		t.Fatalf("rival SelectTime after dispose: %v", err)
	}
}

func TestFlow_SubscriptionFailureDegradesGracefully(t *testing.T) {
	env := newTestEnv()
	env.subscriber.err = errors.New("broker down")
	f := env.newFlow("client-1", Callbacks{})
	defer f.Dispose()
	ctx := context.Background()

	advanceToSelectingTime(t, f)

	// The flow still books end to end without live updates.
	if err := f.SelectTime(ctx, flowSlot); err != nil {
		t.Fatalf("SelectTime: %v", err)
	}
	if _, err := f.Confirm(ctx, 60, ""); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
}

func waitDone(t *testing.T, wg *sync.WaitGroup, timeout time.Duration, what string) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}
