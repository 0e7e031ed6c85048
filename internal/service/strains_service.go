package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/strainlens/hub/internal/models"
	"github.com/strainlens/hub/internal/scanerrors"
)

// StrainsRepository defines the data access the strains service needs.
type StrainsRepository interface {
	Create(ctx context.Context, req models.CreateStrainRequest) (*models.StrainProfile, error)
	Get(ctx context.Context, strainID uuid.UUID) (*models.StrainProfile, error)
	AddReference(ctx context.Context, strainID uuid.UUID, imageRef string, embedding []float32) error
	Delete(ctx context.Context, strainID uuid.UUID) error
	List(ctx context.Context, ownerID string, limit, offset int) ([]models.StrainProfile, int64, error)
}

// ImageEmbedder produces a fixed-length embedding for an image reference.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, imageRef string) ([]float32, error)
}

// LibraryInvalidator drops cached library snapshots after a mutation.
type LibraryInvalidator interface {
	Invalidate(ownerID string)
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// StrainsService handles business logic for strain profiles and their
// reference images.
type StrainsService struct {
	repo     StrainsRepository
	embedder ImageEmbedder
	library  LibraryInvalidator
}

// StrainsServiceParams holds the dependencies for NewStrainsService.
// Library may be nil when no snapshot cache is in use.
type StrainsServiceParams struct {
	Repo     StrainsRepository
	Embedder ImageEmbedder
	Library  LibraryInvalidator
}

// NewStrainsService creates a strains service.
func NewStrainsService(p StrainsServiceParams) *StrainsService {
	return &StrainsService{
		repo:     p.Repo,
		embedder: p.Embedder,
		library:  p.Library,
	}
}

// CreateStrain creates a new strain profile with no references yet.
func (s *StrainsService) CreateStrain(ctx context.Context, req models.CreateStrainRequest) (*models.StrainProfile, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, scanerrors.NewValidationError("owner_id", "owner_id is required")
	}

	if strings.TrimSpace(req.Name) == "" {
		return nil, scanerrors.NewValidationError("name", "name is required")
	}

	profile, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	s.invalidate(profile.OwnerID)

	return profile, nil
}

// GetStrain returns one strain profile with its references.
func (s *StrainsService) GetStrain(ctx context.Context, strainID uuid.UUID) (*models.StrainProfile, error) {
	return s.repo.Get(ctx, strainID)
}

// AddReference embeds the image and appends it to the strain's reference set.
// The next library snapshot picks it up, so the very next scan can match
// against it.
func (s *StrainsService) AddReference(ctx context.Context, strainID uuid.UUID, req models.AddReferenceRequest) (*models.StrainProfile, error) {
	if strings.TrimSpace(req.ImageRef) == "" {
		return nil, scanerrors.NewValidationError("image_ref", "image_ref is required")
	}

	embedding, err := s.embedder.EmbedImage(ctx, req.ImageRef)
	if err != nil {
		return nil, fmt.Errorf("embed reference image: %w", err)
	}

	if err := s.repo.AddReference(ctx, strainID, req.ImageRef, embedding); err != nil {
		return nil, err
	}

	profile, err := s.repo.Get(ctx, strainID)
	if err != nil {
		return nil, err
	}

	s.invalidate(profile.OwnerID)

	return profile, nil
}

// ListStrains returns an owner's strain profiles (metadata only).
func (s *StrainsService) ListStrains(ctx context.Context, ownerID string, limit, offset int) (*models.ListStrainsResponse, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, scanerrors.NewValidationError("owner_id", "owner_id is required")
	}

	if limit <= 0 {
		limit = defaultListLimit
	}

	if limit > maxListLimit {
		limit = maxListLimit
	}

	strains, total, err := s.repo.List(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}

	return &models.ListStrainsResponse{
		Data:   strains,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}, nil
}

// DeleteStrain removes a strain and all its reference embeddings. This is the
// only path that deletes reference embeddings.
func (s *StrainsService) DeleteStrain(ctx context.Context, strainID uuid.UUID) error {
	profile, err := s.repo.Get(ctx, strainID)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, strainID); err != nil {
		return err
	}

	s.invalidate(profile.OwnerID)

	return nil
}

func (s *StrainsService) invalidate(ownerID string) {
	if s.library != nil {
		s.library.Invalidate(ownerID)
	}
}
