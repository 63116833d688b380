package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	bookingsrepo "serein/internal/bookings/repository"
	locksrepo "serein/internal/locks/repository"
	"serein/pkg/config"
	"serein/pkg/model"
)

// OccupancyRepository gathers everything that makes a candidate slot
// unavailable: non-cancelled bookings and live locks. Both reads are
// point-in-time snapshots; the lock CAS write is where correctness lives,
// so slight staleness here is acceptable.
type OccupancyRepository interface {
	BookedTimes(ctx context.Context, therapistID string, from, to time.Time) ([]time.Time, error)
	ActiveLocks(ctx context.Context, therapistID string, from, to, now time.Time) ([]*model.SlotLock, error)
}

type mongoOccupancyRepository struct {
	cfg      *config.Config
	bookings *mongo.Collection
	locks    *mongo.Collection
}

func NewMongoOccupancyRepository(cfg *config.Config) OccupancyRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoOccupancyRepository{
		cfg:      cfg,
		bookings: db.Collection(bookingsrepo.CollectionName),
		locks:    db.Collection(locksrepo.CollectionName),
	}
}

// BookedTimes returns the scheduled_at values of non-cancelled bookings in
// [from, to).
func (r *mongoOccupancyRepository) BookedTimes(ctx context.Context, therapistID string, from, to time.Time) ([]time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"therapist_id": therapistID,
		"scheduled_at": bson.M{"$gte": from, "$lt": to},
		"status":       bson.M{"$in": model.ActiveBookingStatuses},
	}
	opts := options.Find().SetProjection(bson.M{"scheduled_at": 1})

	cursor, err := r.bookings.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ScheduledAt time.Time `bson:"scheduled_at"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	times := make([]time.Time, len(rows))
	for i, row := range rows {
		times[i] = row.ScheduledAt
	}
	return times, nil
}

func (r *mongoOccupancyRepository) ActiveLocks(ctx context.Context, therapistID string, from, to, now time.Time) ([]*model.SlotLock, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"therapist_id":  therapistID,
		"slot_datetime": bson.M{"$gte": from, "$lt": to},
		"expires_at":    bson.M{"$gt": now},
	}

	cursor, err := r.locks.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find slot locks: %w", err)
	}
	defer cursor.Close(ctx)

	var locks []*model.SlotLock
	if err = cursor.All(ctx, &locks); err != nil {
		return nil, fmt.Errorf("failed to decode slot locks: %w", err)
	}

	return locks, nil
}
