package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	therapisterrors "serein/internal/therapists/errors"
	"serein/pkg/config"
	"serein/pkg/model"
)

const (
	CollectionName = "Therapists"
)

// TherapistRepository reads the therapist directory. The booking core
// never writes here; working hours and service types are managed out of
// band.
type TherapistRepository interface {
	FindByID(ctx context.Context, therapistID string) (*model.Therapist, error)
	ListAccepting(ctx context.Context, serviceType string, limit, offset int) ([]*model.Therapist, error)
}

type mongoTherapistRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoTherapistRepository(cfg *config.Config) TherapistRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoTherapistRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoTherapistRepository) FindByID(ctx context.Context, therapistID string) (*model.Therapist, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var therapist model.Therapist
	err := r.collection.FindOne(ctx, bson.M{"_id": therapistID}).Decode(&therapist)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, therapisterrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find therapist: %w", err)
	}

	return &therapist, nil
}

func (r *mongoTherapistRepository) ListAccepting(ctx context.Context, serviceType string, limit, offset int) ([]*model.Therapist, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{"accepting": true}
	if serviceType != "" {
		filter["service_types"] = serviceType
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}}).
		SetLimit(int64(config.NormalizePaginationLimit(limit))).
		SetSkip(config.NormalizeOffset(int64(offset)))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list therapists: %w", err)
	}
	defer cursor.Close(ctx)

	var therapists []*model.Therapist
	if err = cursor.All(ctx, &therapists); err != nil {
		return nil, fmt.Errorf("failed to decode therapists: %w", err)
	}

	return therapists, nil
}
