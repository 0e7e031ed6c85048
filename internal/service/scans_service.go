package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/strainlens/hub/internal/jobs"
	"github.com/strainlens/hub/internal/models"
	"github.com/strainlens/hub/internal/observability"
	"github.com/strainlens/hub/internal/repository"
	"github.com/strainlens/hub/internal/scanerrors"
)

// ScansRepository defines the data access the scans service needs.
type ScansRepository interface {
	Create(ctx context.Context, req models.CreateScanRequest) (*models.ScanRecord, error)
	Get(ctx context.Context, scanID uuid.UUID) (*models.ScanRecord, error)
	List(ctx context.Context, filters models.ListScansFilters) ([]models.ScanRecord, int64, error)
	ScanCount(ctx context.Context, ownerID string) (int64, error)
	UpdateStage(ctx context.Context, upd repository.ScanStageUpdate, expectedVersion int) ([]string, error)
}

// ScansService handles scan creation, lookup, and listing. The pipeline
// itself runs in PipelineService via a queued job.
type ScansService struct {
	repo    ScansRepository
	jobs    jobs.JobInserter
	metrics observability.ScanMetrics
	logger  *slog.Logger
}

// ScansServiceParams holds the dependencies for NewScansService.
// Metrics may be nil; a nil Logger falls back to slog.Default().
type ScansServiceParams struct {
	Repo    ScansRepository
	Jobs    jobs.JobInserter
	Metrics observability.ScanMetrics
	Logger  *slog.Logger
}

// NewScansService creates a scans service.
func NewScansService(p ScansServiceParams) *ScansService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ScansService{
		repo:    p.Repo,
		jobs:    p.Jobs,
		metrics: p.Metrics,
		logger:  logger,
	}
}

// CreateScan persists a pending scan record and enqueues the identification
// pipeline. When the enqueue fails the scan stays pending and the error is
// returned; nothing advances a scan except the pipeline job.
func (s *ScansService) CreateScan(ctx context.Context, req models.CreateScanRequest) (*models.ScanRecord, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, scanerrors.NewValidationError("owner_id", "owner_id is required")
	}

	if strings.TrimSpace(req.ImageRef) == "" {
		return nil, scanerrors.NewValidationError("image_ref", "image_ref is required")
	}

	scan, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordScanCreated(ctx)
	}

	if err := s.jobs.InsertScanPipelineJob(ctx, jobs.ScanPipelineArgs{ScanID: scan.ID}); err != nil {
		if s.metrics != nil {
			s.metrics.RecordEnqueueError(ctx, "scan_pipeline")
		}

		s.logger.ErrorContext(ctx, "scan created but pipeline enqueue failed",
			"scan_id", scan.ID,
			"error", err,
		)

		return nil, fmt.Errorf("enqueue scan pipeline: %w", err)
	}

	return scan, nil
}

// GetScan returns one scan record.
func (s *ScansService) GetScan(ctx context.Context, scanID uuid.UUID) (*models.ScanRecord, error) {
	return s.repo.Get(ctx, scanID)
}

// ListScans returns scan records matching the filters, newest first.
func (s *ScansService) ListScans(ctx context.Context, filters models.ListScansFilters) (*models.ListScansResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultListLimit
	}

	if filters.Limit > maxListLimit {
		filters.Limit = maxListLimit
	}

	scans, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	return &models.ListScansResponse{
		Data:   scans,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}

// ScanCount returns how many scans an owner has created, terminal or not.
func (s *ScansService) ScanCount(ctx context.Context, ownerID string) (int64, error) {
	if strings.TrimSpace(ownerID) == "" {
		return 0, scanerrors.NewValidationError("owner_id", "owner_id is required")
	}

	return s.repo.ScanCount(ctx, ownerID)
}
