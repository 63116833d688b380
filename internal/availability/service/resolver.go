package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"serein/internal/availability/repository"
	therapisterrors "serein/internal/therapists/errors"
	therapistsrepo "serein/internal/therapists/repository"
	"serein/pkg/config"
	apperrors "serein/pkg/errors"
	"serein/pkg/model"
)

// Resolver computes the bookable slots for one therapist on one date.
// Resolution is a pure read: the answer is advisory and may be stale the
// moment it is returned, which is why booking goes through the lock and
// the transactional commit rather than trusting a resolved slot.
type Resolver interface {
	Resolve(ctx context.Context, therapistID string, date time.Time, requesterID string) ([]model.Slot, error)
}

type resolverService struct {
	therapists therapistsrepo.TherapistRepository
	occupancy  repository.OccupancyRepository
	cfg        *config.Config
	now        func() time.Time
}

func NewResolverService(therapists therapistsrepo.TherapistRepository, occupancy repository.OccupancyRepository, cfg *config.Config) Resolver {
	return &resolverService{
		therapists: therapists,
		occupancy:  occupancy,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Resolve enumerates candidate start times from the therapist's
// working-hours rules at session-duration granularity, then marks each
// candidate against non-cancelled bookings and live locks fetched in one
// pass. A candidate held by the requester's own live lock stays available
// with HeldByRequester set. A weekday with no rules resolves to an empty
// slice, not an error.
func (s *resolverService) Resolve(ctx context.Context, therapistID string, date time.Time, requesterID string) ([]model.Slot, error) {
	if therapistID == "" {
		return nil, apperrors.Validation("therapist id is required", nil)
	}
	if date.IsZero() {
		return nil, apperrors.Validation("date is required", nil)
	}

	therapist, err := s.therapists.FindByID(ctx, therapistID)
	if err != nil {
		if errors.Is(err, therapisterrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("therapist", therapistID)
		}
		s.cfg.Log.Error("Failed to load therapist for resolution", "therapist_id", therapistID, "error", err)
		return nil, apperrors.TransientStorage("failed to load therapist", err)
	}
	if therapist.SessionDurationMin <= 0 {
		return nil, apperrors.Validation("therapist has no session duration configured", map[string]any{
			"therapist_id": therapistID,
		})
	}

	loc := time.UTC
	if therapist.TimeZone != "" {
		if l, err := time.LoadLocation(therapist.TimeZone); err == nil {
			loc = l
		} else {
			s.cfg.Log.Warn("Unknown therapist time zone, falling back to UTC",
				"therapist_id", therapistID,
				"time_zone", therapist.TimeZone,
			)
		}
	}

	local := date.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	rules := therapist.RulesFor(dayStart.Weekday())
	if len(rules) == 0 {
		return []model.Slot{}, nil
	}

	candidates, err := enumerateCandidates(rules, dayStart, therapist.SessionDurationMin)
	if err != nil {
		return nil, apperrors.Validation("invalid working-hours rule", map[string]any{
			"therapist_id": therapistID,
			"reason":       err.Error(),
		})
	}

	now := s.now()
	booked, err := s.occupancy.BookedTimes(ctx, therapistID, dayStart.UTC(), dayEnd.UTC())
	if err != nil {
		s.cfg.Log.Error("Failed to load bookings for resolution", "therapist_id", therapistID, "error", err)
		return nil, apperrors.TransientStorage("failed to load bookings", err)
	}
	locks, err := s.occupancy.ActiveLocks(ctx, therapistID, dayStart.UTC(), dayEnd.UTC(), now)
	if err != nil {
		s.cfg.Log.Error("Failed to load slot locks for resolution", "therapist_id", therapistID, "error", err)
		return nil, apperrors.TransientStorage("failed to load slot locks", err)
	}

	bookedSet := make(map[int64]struct{}, len(booked))
	for _, t := range booked {
		bookedSet[t.UTC().Truncate(time.Minute).Unix()] = struct{}{}
	}
	lockOwner := make(map[int64]string, len(locks))
	for _, l := range locks {
		if l.Active(now) {
			lockOwner[l.SlotDatetime.UTC().Truncate(time.Minute).Unix()] = l.LockedBy
		}
	}

	slots := make([]model.Slot, 0, len(candidates))
	for _, start := range candidates {
		key := start.Unix()
		slot := model.Slot{
			TherapistID: therapistID,
			StartTime:   start,
			DurationMin: therapist.SessionDurationMin,
			Available:   true,
		}
		if _, ok := bookedSet[key]; ok {
			slot.Available = false
		} else if owner, ok := lockOwner[key]; ok {
			if requesterID != "" && owner == requesterID {
				slot.HeldByRequester = true
			} else {
				slot.Available = false
			}
		}
		slots = append(slots, slot)
	}

	return slots, nil
}

// enumerateCandidates walks every rule's window in granularity steps,
// keeping starts whose full session still fits before the window's end.
// Overlapping rules yield each start once; results are sorted and in UTC.
func enumerateCandidates(rules []model.WorkingHoursRule, dayStart time.Time, granularityMin int) ([]time.Time, error) {
	step := time.Duration(granularityMin) * time.Minute
	seen := make(map[int64]struct{})
	var candidates []time.Time

	for _, rule := range rules {
		start, err := atWallClock(dayStart, rule.Start)
		if err != nil {
			return nil, err
		}
		end, err := atWallClock(dayStart, rule.End)
		if err != nil {
			return nil, err
		}
		if !end.After(start) {
			return nil, fmt.Errorf("window end %q is not after start %q", rule.End, rule.Start)
		}

		for t := start; !t.Add(step).After(end); t = t.Add(step) {
			utc := t.UTC().Truncate(time.Minute)
			if _, ok := seen[utc.Unix()]; ok {
				continue
			}
			seen[utc.Unix()] = struct{}{}
			candidates = append(candidates, utc)
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Before(candidates[j]) })
	return candidates, nil
}

func atWallClock(dayStart time.Time, hhmm string) (time.Time, error) {
	clock, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid wall-clock time %q", hhmm)
	}
	return time.Date(
		dayStart.Year(), dayStart.Month(), dayStart.Day(),
		clock.Hour(), clock.Minute(), 0, 0, dayStart.Location(),
	), nil
}
