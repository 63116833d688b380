package service

import (
	"context"
	"sync"
	"testing"
	"time"

	lockerrors "serein/internal/locks/errors"
	"serein/pkg/config"
	apperrors "serein/pkg/errors"
	"serein/pkg/logger"
	"serein/pkg/model"
)

// memoryLockRepository mirrors the storage contract: the acquire path is a
// single compare-and-swap under one mutex, exactly as the conditional
// upsert behaves against the unique index.
type memoryLockRepository struct {
	mu    sync.Mutex
	locks map[string]*model.SlotLock
}

func newMemoryLockRepository() *memoryLockRepository {
	return &memoryLockRepository{locks: make(map[string]*model.SlotLock)}
}

func lockKey(therapistID string, slotTime time.Time) string {
	return therapistID + "|" + slotTime.Format(time.RFC3339)
}

func (r *memoryLockRepository) Acquire(_ context.Context, therapistID string, slotTime time.Time, ownerID string, now time.Time, ttl time.Duration) (*model.SlotLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := lockKey(therapistID, slotTime)
	existing, ok := r.locks[key]
	if ok && existing.LockedBy != ownerID && now.Before(existing.ExpiresAt) {
		return nil, lockerrors.ErrContended
	}

	lock := &model.SlotLock{
		TherapistID:  therapistID,
		SlotDatetime: slotTime,
		LockedBy:     ownerID,
		AcquiredAt:   now,
		ExpiresAt:    now.Add(ttl),
	}
	if ok && existing.LockedBy == ownerID && now.Before(existing.ExpiresAt) {
		lock.AcquiredAt = existing.AcquiredAt
	}
	r.locks[key] = lock
	return lock, nil
}

func (r *memoryLockRepository) Release(_ context.Context, therapistID string, slotTime time.Time, ownerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := lockKey(therapistID, slotTime)
	existing, ok := r.locks[key]
	if !ok || existing.LockedBy != ownerID {
		return false, nil
	}
	delete(r.locks, key)
	return true, nil
}

func (r *memoryLockRepository) FindActiveInRange(_ context.Context, therapistID string, from, to, now time.Time) ([]*model.SlotLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var active []*model.SlotLock
	for _, l := range r.locks {
		if l.TherapistID == therapistID && !l.SlotDatetime.Before(from) && l.SlotDatetime.Before(to) && now.Before(l.ExpiresAt) {
			active = append(active, l)
		}
	}
	return active, nil
}

func (r *memoryLockRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for key, l := range r.locks {
		if !now.Before(l.ExpiresAt) {
			delete(r.locks, key)
			n++
		}
	}
	return n, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.AvailabilityChangeEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event model.AvailabilityChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) changeTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.events))
	for i, e := range p.events {
		types[i] = e.ChangeType
	}
	return types
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		LockTTL: 5 * time.Minute,
		Log: logger.New(logger.Config{
			Level:   "error",
			Format:  logger.JSON,
			Service: "test",
		}),
	}
}

func newTestService(repo *memoryLockRepository, pub *recordingPublisher, cfg *config.Config, now func() time.Time) *lockService {
	return &lockService{repo: repo, publisher: pub, cfg: cfg, now: now}
}

var slotTen = time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC)

func TestAcquire_MutualExclusion(t *testing.T) {
	repo := newMemoryLockRepository()
	svc := newTestService(repo, &recordingPublisher{}, testConfig(t), time.Now)

	const contenders = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	var won, contended int

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Acquire(context.Background(), "therapist-1", slotTen, "user-"+string(rune('a'+n)))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case apperrors.HasCode(err, apperrors.CodeSlotContended):
				contended++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if won != 1 {
		t.Errorf("expected exactly 1 winner, got %d", won)
	}
	if contended != contenders-1 {
		t.Errorf("expected %d contended, got %d", contenders-1, contended)
	}
}

func TestAcquire_ReentrantRenewalExtendsExpiry(t *testing.T) {
	repo := newMemoryLockRepository()
	current := slotTen.Add(-time.Hour)
	now := func() time.Time { return current }
	svc := newTestService(repo, &recordingPublisher{}, testConfig(t), now)

	first, err := svc.Acquire(context.Background(), "therapist-1", slotTen, "user-a")
	if err != nil {
		t.Fatalf("initial acquire failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		current = current.Add(time.Minute)
		renewed, err := svc.Acquire(context.Background(), "therapist-1", slotTen, "user-a")
		if err != nil {
			t.Fatalf("renewal %d failed: %v", i, err)
		}
		if !renewed.ExpiresAt.After(first.ExpiresAt) {
			t.Errorf("renewal %d did not extend expires_at: %v vs %v", i, renewed.ExpiresAt, first.ExpiresAt)
		}
		if !renewed.AcquiredAt.Equal(first.AcquiredAt) {
			t.Errorf("renewal %d changed acquired_at", i)
		}
		first = renewed
	}
}

func TestAcquire_ContendedWhileHeld(t *testing.T) {
	repo := newMemoryLockRepository()
	svc := newTestService(repo, &recordingPublisher{}, testConfig(t), time.Now)

	if _, err := svc.Acquire(context.Background(), "therapist-1", slotTen, "user-a"); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	_, err := svc.Acquire(context.Background(), "therapist-1", slotTen, "user-b")
	if !apperrors.HasCode(err, apperrors.CodeSlotContended) {
		t.Fatalf("expected SLOT_CONTENDED, got %v", err)
	}
}

func TestAcquire_ExpiredLockIsAbsent(t *testing.T) {
	repo := newMemoryLockRepository()
	current := slotTen.Add(-2 * time.Hour)
	now := func() time.Time { return current }
	cfg := testConfig(t)
	svc := newTestService(repo, &recordingPublisher{}, cfg, now)

	if _, err := svc.Acquire(context.Background(), "therapist-1", slotTen, "user-a"); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	// Past the TTL with no renewal: the row still exists but must be
	// treated as absent by a competing acquirer.
	current = current.Add(cfg.LockTTL + time.Second)

	lock, err := svc.Acquire(context.Background(), "therapist-1", slotTen, "user-b")
	if err != nil {
		t.Fatalf("expected takeover of expired lock, got %v", err)
	}
	if lock.LockedBy != "user-b" {
		t.Errorf("expected user-b to own the lock, got %s", lock.LockedBy)
	}
	// A takeover is a fresh acquisition, not a continuation of the
	// previous owner's lease.
	if !lock.AcquiredAt.Equal(current) {
		t.Errorf("expected acquired_at reset to takeover time %v, got %v", current, lock.AcquiredAt)
	}
	if !lock.ExpiresAt.Equal(current.Add(cfg.LockTTL)) {
		t.Errorf("expected expiry %v, got %v", current.Add(cfg.LockTTL), lock.ExpiresAt)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	repo := newMemoryLockRepository()
	svc := newTestService(repo, &recordingPublisher{}, testConfig(t), time.Now)

	if _, err := svc.Acquire(context.Background(), "therapist-1", slotTen, "user-a"); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := svc.Release(context.Background(), "therapist-1", slotTen, "user-a"); err != nil {
			t.Fatalf("release %d errored: %v", i, err)
		}
	}

	// Releasing a slot that was never locked is also a no-op success.
	if err := svc.Release(context.Background(), "therapist-1", slotTen.Add(time.Hour), "user-a"); err != nil {
		t.Fatalf("release of unheld slot errored: %v", err)
	}
}

func TestRelease_DoesNotTouchForeignLock(t *testing.T) {
	repo := newMemoryLockRepository()
	svc := newTestService(repo, &recordingPublisher{}, testConfig(t), time.Now)

	if _, err := svc.Acquire(context.Background(), "therapist-1", slotTen, "user-a"); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := svc.Release(context.Background(), "therapist-1", slotTen, "user-b"); err != nil {
		t.Fatalf("foreign release errored: %v", err)
	}

	// user-a still holds the lock, so user-b must stay locked out.
	_, err := svc.Acquire(context.Background(), "therapist-1", slotTen, "user-b")
	if !apperrors.HasCode(err, apperrors.CodeSlotContended) {
		t.Fatalf("expected SLOT_CONTENDED after foreign release, got %v", err)
	}
}

func TestEvents_AcquireAndReleasePublish(t *testing.T) {
	repo := newMemoryLockRepository()
	pub := &recordingPublisher{}
	svc := newTestService(repo, pub, testConfig(t), time.Now)

	if _, err := svc.Acquire(context.Background(), "therapist-1", slotTen, "user-a"); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := svc.Release(context.Background(), "therapist-1", slotTen, "user-a"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	// Second release deletes nothing and must not publish.
	if err := svc.Release(context.Background(), "therapist-1", slotTen, "user-a"); err != nil {
		t.Fatalf("second release failed: %v", err)
	}

	got := pub.changeTypes()
	want := []string{model.ChangeLocked, model.ChangeUnlocked}
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestAcquire_RejectsMissingFields(t *testing.T) {
	svc := newTestService(newMemoryLockRepository(), &recordingPublisher{}, testConfig(t), time.Now)

	if _, err := svc.Acquire(context.Background(), "", slotTen, "user-a"); !apperrors.HasCode(err, apperrors.CodeValidationFailed) {
		t.Errorf("expected VALIDATION_FAILED for empty therapist, got %v", err)
	}
	if _, err := svc.Acquire(context.Background(), "therapist-1", time.Time{}, "user-a"); !apperrors.HasCode(err, apperrors.CodeValidationFailed) {
		t.Errorf("expected VALIDATION_FAILED for zero slot time, got %v", err)
	}
	if _, err := svc.Acquire(context.Background(), "therapist-1", slotTen, ""); !apperrors.HasCode(err, apperrors.CodeValidationFailed) {
		t.Errorf("expected VALIDATION_FAILED for empty requester, got %v", err)
	}
}
