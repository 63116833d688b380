package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"serein/internal/migrations/mongo/validators"
	"serein/pkg/model"
)

var (
	TherapistsIndexes = []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "accepting", Value: 1},
			{Key: "service_types", Value: 1},
		}},
		{Keys: bson.D{{Key: "name", Value: 1}}},
	}

	// The partial unique index is the storage-level backstop for booking
	// exclusivity: at most one non-cancelled booking per (therapist,
	// scheduled_at). Cancelled rows fall outside the filter, so a
	// cancelled slot can be booked again.
	BookingsIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "therapist_id", Value: 1},
				{Key: "scheduled_at", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"status": bson.M{"$in": model.ActiveBookingStatuses},
				}),
		},
		{Keys: bson.D{
			{Key: "client_id", Value: 1},
			{Key: "scheduled_at", Value: -1},
		}},
	}

	// The unique index makes concurrent lock upserts collide, which is
	// what turns a lost acquire race into a duplicate key error. The TTL
	// index reclaims expired rows lazily; readers already treat expired
	// locks as absent, so its timing does not affect correctness.
	SlotLocksIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "therapist_id", Value: 1},
				{Key: "slot_datetime", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
)

func RunMigration(ctx context.Context, client *mongo.Client, dbName string) error {
	db := client.Database(dbName)
	fmt.Printf("🚀 Running Serein Mongo migrations on database: %s\n", dbName)

	collections := map[string]struct {
		Indexes   []mongo.IndexModel
		Validator bson.M
	}{
		"Therapists": {
			Indexes:   TherapistsIndexes,
			Validator: validators.TherapistValidator,
		},
		"Bookings": {
			Indexes:   BookingsIndexes,
			Validator: validators.BookingValidator,
		},
		"Slot_locks": {
			Indexes:   SlotLocksIndexes,
			Validator: validators.SlotLockValidator,
		},
	}

	for name, def := range collections {
		if err := ensureCollection(ctx, db, name, def.Validator); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	fmt.Println("✅ All migrations applied successfully.")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		fmt.Printf("🆕 Creating collection: %s\n", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
	} else {
		fmt.Printf("ℹ️ Collection %s already exists — updating validator if needed\n", name)
		command := bson.D{
			{Key: "collMod", Value: name},
			{Key: "validator", Value: validator},
		}
		if err := db.RunCommand(ctx, command).Err(); err != nil {
			fmt.Printf("⚠️ Warning: failed updating validator for %s: %v\n", name, err)
		}
	}

	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel) error {
	coll := db.Collection(name)
	_, err := coll.Indexes().CreateMany(ctx, models)
	if err != nil {
		return err
	}
	fmt.Printf("📚 Ensured indexes for %s\n", name)
	return nil
}
