package service

import (
	"context"
	"testing"
	"time"

	therapisterrors "serein/internal/therapists/errors"
	"serein/pkg/config"
	apperrors "serein/pkg/errors"
	"serein/pkg/logger"
	"serein/pkg/model"
)

type mockTherapistRepo struct {
	findByIDFunc func(ctx context.Context, therapistID string) (*model.Therapist, error)
}

func (m *mockTherapistRepo) FindByID(ctx context.Context, therapistID string) (*model.Therapist, error) {
	return m.findByIDFunc(ctx, therapistID)
}

func (m *mockTherapistRepo) ListAccepting(context.Context, string, int, int) ([]*model.Therapist, error) {
	return nil, nil
}

type mockOccupancyRepo struct {
	bookedTimesFunc func(ctx context.Context, therapistID string, from, to time.Time) ([]time.Time, error)
	activeLocksFunc func(ctx context.Context, therapistID string, from, to, now time.Time) ([]*model.SlotLock, error)
}

func (m *mockOccupancyRepo) BookedTimes(ctx context.Context, therapistID string, from, to time.Time) ([]time.Time, error) {
	if m.bookedTimesFunc == nil {
		return nil, nil
	}
	return m.bookedTimesFunc(ctx, therapistID, from, to)
}

func (m *mockOccupancyRepo) ActiveLocks(ctx context.Context, therapistID string, from, to, now time.Time) ([]*model.SlotLock, error) {
	if m.activeLocksFunc == nil {
		return nil, nil
	}
	return m.activeLocksFunc(ctx, therapistID, from, to, now)
}

func testConfig() *config.Config {
	return &config.Config{
		Log: logger.New(logger.Config{Level: "error", Format: logger.JSON, Service: "test"}),
	}
}

// Monday 2026-03-09 in UTC.
var monday = time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)

func mondayTherapist() *model.Therapist {
	return &model.Therapist{
		ID:   "therapist-1",
		Name: "Dr. Ayala",
		WorkingHours: []model.WorkingHoursRule{
			{Weekday: "Monday", Start: "09:00", End: "12:00"},
			{Weekday: "Monday", Start: "14:00", End: "16:00"},
		},
		SessionDurationMin: 60,
		Accepting:          true,
	}
}

func newResolver(therapist *model.Therapist, occupancy *mockOccupancyRepo, now func() time.Time) Resolver {
	repo := &mockTherapistRepo{
		findByIDFunc: func(_ context.Context, id string) (*model.Therapist, error) {
			if therapist != nil && therapist.ID == id {
				return therapist, nil
			}
			return nil, therapisterrors.ErrNotFound
		},
	}
	svc := NewResolverService(repo, occupancy, testConfig()).(*resolverService)
	if now != nil {
		svc.now = now
	}
	return svc
}

func slotTimes(slots []model.Slot) []time.Time {
	times := make([]time.Time, len(slots))
	for i, s := range slots {
		times[i] = s.StartTime
	}
	return times
}

func TestResolve_EnumeratesWorkingHours(t *testing.T) {
	svc := newResolver(mondayTherapist(), &mockOccupancyRepo{}, nil)

	slots, err := svc.Resolve(context.Background(), "therapist-1", monday, "user-a")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	// 09-12 yields three hourly starts, 14-16 yields two.
	want := []time.Time{
		monday.Add(9 * time.Hour),
		monday.Add(10 * time.Hour),
		monday.Add(11 * time.Hour),
		monday.Add(14 * time.Hour),
		monday.Add(15 * time.Hour),
	}
	got := slotTimes(slots)
	if len(got) != len(want) {
		t.Fatalf("expected %d slots, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("slot %d: expected %v, got %v", i, want[i], got[i])
		}
		if !slots[i].Available {
			t.Errorf("slot %d: expected available", i)
		}
		if slots[i].DurationMin != 60 {
			t.Errorf("slot %d: expected 60min duration, got %d", i, slots[i].DurationMin)
		}
	}
}

func TestResolve_NoRulesForWeekday(t *testing.T) {
	svc := newResolver(mondayTherapist(), &mockOccupancyRepo{}, nil)

	sunday := monday.AddDate(0, 0, -1)
	slots, err := svc.Resolve(context.Background(), "therapist-1", sunday, "user-a")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("expected empty slice for a day off, got %d slots", len(slots))
	}
}

func TestResolve_BookedSlotUnavailable(t *testing.T) {
	occupancy := &mockOccupancyRepo{
		bookedTimesFunc: func(context.Context, string, time.Time, time.Time) ([]time.Time, error) {
			return []time.Time{monday.Add(10 * time.Hour)}, nil
		},
	}
	svc := newResolver(mondayTherapist(), occupancy, nil)

	slots, err := svc.Resolve(context.Background(), "therapist-1", monday, "user-a")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	for _, s := range slots {
		wantAvailable := !s.StartTime.Equal(monday.Add(10 * time.Hour))
		if s.Available != wantAvailable {
			t.Errorf("slot %v: available=%v, want %v", s.StartTime, s.Available, wantAvailable)
		}
	}
}

func TestResolve_ForeignLockUnavailable_OwnLockHeld(t *testing.T) {
	now := monday.Add(8 * time.Hour)
	occupancy := &mockOccupancyRepo{
		activeLocksFunc: func(context.Context, string, time.Time, time.Time, time.Time) ([]*model.SlotLock, error) {
			return []*model.SlotLock{
				{TherapistID: "therapist-1", SlotDatetime: monday.Add(9 * time.Hour), LockedBy: "user-b", ExpiresAt: now.Add(time.Minute)},
				{TherapistID: "therapist-1", SlotDatetime: monday.Add(11 * time.Hour), LockedBy: "user-a", ExpiresAt: now.Add(time.Minute)},
			}, nil
		},
	}
	svc := newResolver(mondayTherapist(), occupancy, func() time.Time { return now })

	slots, err := svc.Resolve(context.Background(), "therapist-1", monday, "user-a")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	byTime := make(map[int64]model.Slot)
	for _, s := range slots {
		byTime[s.StartTime.Unix()] = s
	}

	foreign := byTime[monday.Add(9*time.Hour).Unix()]
	if foreign.Available || foreign.HeldByRequester {
		t.Errorf("foreign lock: expected unavailable and not held, got %+v", foreign)
	}
	own := byTime[monday.Add(11*time.Hour).Unix()]
	if !own.Available || !own.HeldByRequester {
		t.Errorf("own lock: expected available and held, got %+v", own)
	}
}

func TestResolve_ExpiredLockIgnored(t *testing.T) {
	now := monday.Add(8 * time.Hour)
	occupancy := &mockOccupancyRepo{
		activeLocksFunc: func(context.Context, string, time.Time, time.Time, time.Time) ([]*model.SlotLock, error) {
			return []*model.SlotLock{
				{TherapistID: "therapist-1", SlotDatetime: monday.Add(9 * time.Hour), LockedBy: "user-b", ExpiresAt: now.Add(-time.Second)},
			}, nil
		},
	}
	svc := newResolver(mondayTherapist(), occupancy, func() time.Time { return now })

	slots, err := svc.Resolve(context.Background(), "therapist-1", monday, "user-a")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	for _, s := range slots {
		if !s.Available {
			t.Errorf("slot %v: expected available, expired lock must read as absent", s.StartTime)
		}
	}
}

func TestResolve_TherapistNotFound(t *testing.T) {
	svc := newResolver(nil, &mockOccupancyRepo{}, nil)

	_, err := svc.Resolve(context.Background(), "ghost", monday, "user-a")
	if !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestResolve_SessionDoesNotFitWindow(t *testing.T) {
	therapist := mondayTherapist()
	// 90-minute sessions in a 09:00-12:00 window fit only twice; the 14:00
	// window fits one.
	therapist.SessionDurationMin = 90
	svc := newResolver(therapist, &mockOccupancyRepo{}, nil)

	slots, err := svc.Resolve(context.Background(), "therapist-1", monday, "user-a")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	want := []time.Time{
		monday.Add(9 * time.Hour),
		monday.Add(10*time.Hour + 30*time.Minute),
		monday.Add(14 * time.Hour),
	}
	got := slotTimes(slots)
	if len(got) != len(want) {
		t.Fatalf("expected %d slots, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("slot %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}
