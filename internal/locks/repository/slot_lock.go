package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	lockerrors "serein/internal/locks/errors"
	"serein/pkg/config"
	"serein/pkg/model"
)

const (
	CollectionName = "Slot_locks"
)

// SlotLockRepository is the storage side of the lock protocol. Acquire is
// the one operation in the whole system that must be linearizable: it is a
// single conditional upsert, never a read followed by a write.
type SlotLockRepository interface {
	Acquire(ctx context.Context, therapistID string, slotTime time.Time, ownerID string, now time.Time, ttl time.Duration) (*model.SlotLock, error)
	Release(ctx context.Context, therapistID string, slotTime time.Time, ownerID string) (bool, error)
	FindActiveInRange(ctx context.Context, therapistID string, from, to, now time.Time) ([]*model.SlotLock, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type mongoSlotLockRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoSlotLockRepository(cfg *config.Config) SlotLockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSlotLockRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

// Acquire succeeds when the slot has no live lock, or when the caller
// already owns it (re-entrant renewal, which extends expires_at). The
// filter admits only "same owner" or "expired"; when neither matches the
// upsert collides with the unique (therapist_id, slot_datetime) index and
// the duplicate key error is reported as contention. The pipeline update
// keeps acquired_at only across a same-owner renewal of a live lease; an
// insert or a takeover of an expired lock stamps the new acquisition time.
func (r *mongoSlotLockRepository) Acquire(ctx context.Context, therapistID string, slotTime time.Time, ownerID string, now time.Time, ttl time.Duration) (*model.SlotLock, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"therapist_id":  therapistID,
		"slot_datetime": slotTime,
		"$or": []bson.M{
			{"locked_by": ownerID},
			{"expires_at": bson.M{"$lte": now}},
		},
	}
	update := []bson.M{
		{"$set": bson.M{
			"therapist_id":  therapistID,
			"slot_datetime": slotTime,
			"locked_by":     ownerID,
			"expires_at":    now.Add(ttl),
			"acquired_at": bson.M{
				"$cond": bson.M{
					"if": bson.M{"$and": []bson.M{
						{"$eq": []interface{}{"$locked_by", ownerID}},
						{"$gt": []interface{}{"$expires_at", now}},
					}},
					"then": "$acquired_at",
					"else": now,
				},
			},
		}},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var lock model.SlotLock
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&lock)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, lockerrors.ErrContended
		}
		return nil, fmt.Errorf("failed to acquire slot lock: %w", err)
	}

	return &lock, nil
}

// Release deletes the caller's own lock and reports whether anything was
// deleted. Releasing a missing, expired, or foreign lock deletes nothing
// and is not an error.
func (r *mongoSlotLockRepository) Release(ctx context.Context, therapistID string, slotTime time.Time, ownerID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{
		"therapist_id":  therapistID,
		"slot_datetime": slotTime,
		"locked_by":     ownerID,
	})
	if err != nil {
		return false, fmt.Errorf("failed to release slot lock: %w", err)
	}

	return result.DeletedCount > 0, nil
}

// FindActiveInRange returns non-expired locks for a therapist between from
// (inclusive) and to (exclusive). The expires_at filter makes expired rows
// invisible before the TTL monitor removes them.
func (r *mongoSlotLockRepository) FindActiveInRange(ctx context.Context, therapistID string, from, to, now time.Time) ([]*model.SlotLock, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"therapist_id":  therapistID,
		"slot_datetime": bson.M{"$gte": from, "$lt": to},
		"expires_at":    bson.M{"$gt": now},
	}

	cursor, err := r.collection.Find(ctx, filter)
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

// DeleteExpired reclaims lock rows past their lease. The TTL index does
// this on its own cadence; this call exists for the migration smoke test
// and for operational cleanup.
func (r *mongoSlotLockRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.DeleteMany(ctx, bson.M{
		"expires_at": bson.M{"$lte": now},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired slot locks: %w", err)
	}

	return result.DeletedCount, nil
}
