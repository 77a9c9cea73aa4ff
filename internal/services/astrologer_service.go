package services

import (
	"context"

	"github.com/astroveda/consult/internal/dtos"
	apperrors "github.com/astroveda/consult/internal/errors"
	"github.com/astroveda/consult/internal/models"
	"github.com/astroveda/consult/internal/repositories"
)

type AstrologerService struct {
	astrologerRepo repositories.AstrologerRepository
}

func NewAstrologerService(astrologerRepo repositories.AstrologerRepository) *AstrologerService {
	return &AstrologerService{astrologerRepo: astrologerRepo}
}

// Profile returns the public profile shown before a consultation starts.
func (s *AstrologerService) Profile(ctx context.Context, rawID string) (*dtos.AstrologerProfile, error) {
	id, err := models.ID(rawID).Int64()
	if err != nil {
		return nil, apperrors.NotFound("Astrologer")
	}
	astrologer, err := s.astrologerRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if astrologer == nil {
		return nil, apperrors.NotFound("Astrologer")
	}
	return dtos.NewAstrologerProfile(astrologer), nil
}
