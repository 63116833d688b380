package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	bookingerrors "serein/internal/bookings/errors"
	"serein/pkg/config"
	mongodb "serein/pkg/db/mongo"
	"serein/pkg/model"
)

const (
	CollectionName = "Bookings"
)

type BookingRepository interface {
	CreateExclusive(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, bookingID string) (*model.Booking, error)
	FindActiveAt(ctx context.Context, therapistID string, scheduledAt time.Time) (*model.Booking, error)
	ListByClient(ctx context.Context, clientID string, limit, offset int) ([]*model.Booking, error)
}

type mongoBookingRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongodb.TransactionManager
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongodb.NewTransactionManager(cfg.Client.Mongo),
	}
}

func activeAtFilter(therapistID string, scheduledAt time.Time) bson.M {
	return bson.M{
		"therapist_id": therapistID,
		"scheduled_at": scheduledAt,
		"status":       bson.M{"$in": model.ActiveBookingStatuses},
	}
}

// CreateExclusive inserts the booking inside a transaction that first
// re-checks no non-cancelled booking occupies the same (therapist,
// scheduled_at). The partial unique index backs the same rule at the
// storage level, so a race between two transactions surfaces as a
// duplicate key on the loser; both paths report ErrAlreadyBooked.
func (r *mongoBookingRepository) CreateExclusive(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	err := r.txManager.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		count, err := r.collection.CountDocuments(sessCtx, activeAtFilter(booking.TherapistID, booking.ScheduledAt))
		if err != nil {
			return fmt.Errorf("failed to check existing bookings: %w", err)
		}
		if count > 0 {
			return bookingerrors.ErrAlreadyBooked
		}

		if _, err := r.collection.InsertOne(sessCtx, booking); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return bookingerrors.ErrAlreadyBooked
			}
			return fmt.Errorf("failed to insert booking: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, bookingerrors.ErrAlreadyBooked) {
			return bookingerrors.ErrAlreadyBooked
		}
		return err
	}

	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, bookingID string) (*model.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var booking model.Booking
	err := r.collection.FindOne(ctx, bson.M{"_id": bookingID}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return &booking, nil
}

func (r *mongoBookingRepository) FindActiveAt(ctx context.Context, therapistID string, scheduledAt time.Time) (*model.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var booking model.Booking
	err := r.collection.FindOne(ctx, activeAtFilter(therapistID, scheduledAt)).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return &booking, nil
}

func (r *mongoBookingRepository) ListByClient(ctx context.Context, clientID string, limit, offset int) ([]*model.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "scheduled_at", Value: -1}}).
		SetLimit(int64(config.NormalizePaginationLimit(limit))).
		SetSkip(config.NormalizeOffset(int64(offset)))

	cursor, err := r.collection.Find(ctx, bson.M{"client_id": clientID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}
