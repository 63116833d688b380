package service

import (
	"context"
	"errors"

	therapisterrors "serein/internal/therapists/errors"
	"serein/internal/therapists/repository"
	"serein/pkg/config"
	apperrors "serein/pkg/errors"
	"serein/pkg/model"
)

// Directory serves the therapist-selection step of the booking flow.
type Directory interface {
	GetTherapist(ctx context.Context, therapistID string) (*model.Therapist, error)
	ListAccepting(ctx context.Context, serviceType string, limit, offset int) ([]*model.Therapist, error)
}

type directoryService struct {
	repo repository.TherapistRepository
	cfg  *config.Config
}

func NewDirectoryService(repo repository.TherapistRepository, cfg *config.Config) Directory {
	return &directoryService{repo: repo, cfg: cfg}
}

func (s *directoryService) GetTherapist(ctx context.Context, therapistID string) (*model.Therapist, error) {
	if therapistID == "" {
		return nil, apperrors.Validation("therapist id is required", nil)
	}

	therapist, err := s.repo.FindByID(ctx, therapistID)
	if err != nil {
		if errors.Is(err, therapisterrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("therapist", therapistID)
		}
		s.cfg.Log.Error("Failed to load therapist", "therapist_id", therapistID, "error", err)
		return nil, apperrors.TransientStorage("failed to load therapist", err)
	}

	return therapist, nil
}

func (s *directoryService) ListAccepting(ctx context.Context, serviceType string, limit, offset int) ([]*model.Therapist, error) {
	therapists, err := s.repo.ListAccepting(ctx, serviceType, limit, offset)
	if err != nil {
		s.cfg.Log.Error("Failed to list therapists", "service_type", serviceType, "error", err)
		return nil, apperrors.TransientStorage("failed to list therapists", err)
	}

	return therapists, nil
}
