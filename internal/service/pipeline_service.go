package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/strainlens/hub/internal/match"
	"github.com/strainlens/hub/internal/models"
	"github.com/strainlens/hub/internal/observability"
	"github.com/strainlens/hub/internal/openai"
	"github.com/strainlens/hub/internal/reference"
	"github.com/strainlens/hub/internal/repository"
	"github.com/strainlens/hub/internal/resolve"
	"github.com/strainlens/hub/internal/scanerrors"
)

// VisionAnalyzer extracts OCR text and packaging/label insights from an image.
type VisionAnalyzer interface {
	Analyze(ctx context.Context, imageRef string) (*models.VisionResult, error)
}

// Summarizer turns structured scan facts into a short prose summary.
type Summarizer interface {
	Summarize(ctx context.Context, facts openai.SummaryFacts) (string, error)
}

// LibraryLoader serves reference-library snapshots per owner.
type LibraryLoader interface {
	LibraryForOwner(ctx context.Context, ownerID string) (*reference.Library, error)
}

// PipelineService drives a scan through the identification pipeline:
// pending → processing (vision) → matching (embed + rank) → done (decision +
// summary). Every advance is an optimistic-versioned write, so two deliveries
// of the same job cannot interleave: the loser sees a stale write and stops.
type PipelineService struct {
	scans      ScansRepository
	library    LibraryLoader
	embedder   ImageEmbedder
	vision     VisionAnalyzer
	matcher    *match.Engine
	resolver   *resolve.Resolver
	summarizer Summarizer
	limiter    *rate.Limiter
	metrics    observability.ScanMetrics
	logger     *slog.Logger
}

// PipelineServiceParams holds the dependencies for NewPipelineService.
// Limiter bounds calls to external model services and may be nil. Metrics may
// be nil; a nil Logger falls back to slog.Default().
type PipelineServiceParams struct {
	Scans      ScansRepository
	Library    LibraryLoader
	Embedder   ImageEmbedder
	Vision     VisionAnalyzer
	Matcher    *match.Engine
	Resolver   *resolve.Resolver
	Summarizer Summarizer
	Limiter    *rate.Limiter
	Metrics    observability.ScanMetrics
	Logger     *slog.Logger
}

// NewPipelineService creates a pipeline service.
func NewPipelineService(p PipelineServiceParams) *PipelineService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &PipelineService{
		scans:      p.Scans,
		library:    p.Library,
		embedder:   p.Embedder,
		vision:     p.Vision,
		matcher:    p.Matcher,
		resolver:   p.Resolver,
		summarizer: p.Summarizer,
		limiter:    p.Limiter,
		metrics:    p.Metrics,
		logger:     logger,
	}
}

// Run executes the pipeline for one scan until it reaches a terminal stage.
// Running on an already-terminal scan is a no-op, so a re-delivered job does
// nothing. A stage failure marks the scan as error (terminal) and returns nil;
// only infrastructure failures (the error write itself failing) propagate so
// the job can retry.
func (s *PipelineService) Run(ctx context.Context, scanID uuid.UUID) error {
	ctx = observability.WithScanID(ctx, scanID)

	scan, err := s.scans.Get(ctx, scanID)
	if err != nil {
		var notFound *scanerrors.NotFoundError
		if errors.As(err, &notFound) {
			s.logger.InfoContext(ctx, "pipeline: scan no longer exists")
			return nil
		}

		return fmt.Errorf("pipeline load scan: %w", err)
	}

	if scan.Stage.Terminal() {
		s.logger.InfoContext(ctx, "pipeline: scan already terminal", "stage", scan.Stage)

		return nil
	}

	for !scan.Stage.Terminal() {
		var (
			target  models.ScanStage
			stageFn func(context.Context, *models.ScanRecord) error
		)

		switch scan.Stage {
		case models.ScanStagePending:
			target, stageFn = models.ScanStageProcessing, s.runVisionStage
		case models.ScanStageProcessing:
			target, stageFn = models.ScanStageMatching, s.runMatchStage
		case models.ScanStageMatching:
			target, stageFn = models.ScanStageDone, s.runDecisionStage
		default:
			return fmt.Errorf("pipeline: scan %s in unexpected stage %q", scan.ID, scan.Stage)
		}

		start := time.Now()

		err := stageFn(ctx, scan)
		if err == nil {
			s.recordStage(ctx, target, time.Since(start), "success")
			continue
		}

		if errors.Is(err, scanerrors.ErrStaleWrite) {
			s.logger.InfoContext(ctx, "pipeline: lost stage race, another run is ahead", "stage", target)

			return nil
		}

		s.recordStage(ctx, target, time.Since(start), "failed")

		return s.fail(ctx, scan, target, err)
	}

	return nil
}

// runVisionStage analyzes the image and advances pending → processing with
// the OCR text and any packaging/label insights.
func (s *PipelineService) runVisionStage(ctx context.Context, scan *models.ScanRecord) error {
	if err := s.waitLimiter(ctx); err != nil {
		return err
	}

	result, err := s.vision.Analyze(ctx, scan.ImageRef)
	if err != nil {
		return fmt.Errorf("vision analyze: %w", err)
	}

	upd := repository.ScanStageUpdate{
		ID:        scan.ID,
		Stage:     models.ScanStageProcessing,
		Packaging: result.Packaging,
		Label:     result.Label,
	}
	if result.Text != "" {
		upd.OCRText = &result.Text
	}

	return s.advance(ctx, scan, upd)
}

// runMatchStage embeds the scan image, ranks it against the owner's reference
// library, and advances processing → matching with the candidate list. An
// empty library (or no scorable strains) yields an empty candidate list, not
// a failure.
func (s *PipelineService) runMatchStage(ctx context.Context, scan *models.ScanRecord) error {
	if err := s.waitLimiter(ctx); err != nil {
		return err
	}

	query, err := s.embedder.EmbedImage(ctx, scan.ImageRef)
	if err != nil {
		return fmt.Errorf("embed scan image: %w", err)
	}

	lib, err := s.library.LibraryForOwner(ctx, scan.OwnerID)
	if err != nil {
		return err
	}

	ocrText := ""
	if scan.OCRText != nil {
		ocrText = *scan.OCRText
	}

	candidates := s.matcher.Rank(query, lib, ocrText)

	return s.advance(ctx, scan, repository.ScanStageUpdate{
		ID:         scan.ID,
		Stage:      models.ScanStageMatching,
		Candidates: candidates,
	})
}

// runDecisionStage resolves the canonical strain decision, generates the
// summary, and advances matching → done. An unknown strain is a valid outcome.
// Summarization failure is non-fatal: the scan completes with an empty summary.
func (s *PipelineService) runDecisionStage(ctx context.Context, scan *models.ScanRecord) error {
	var (
		top        *models.MatchCandidate
		visualConf float64
	)

	if len(scan.Candidates) > 0 {
		top = &scan.Candidates[0]
		visualConf = top.VisualScore
	}

	decision := s.resolver.Resolve(scan.Packaging, scan.Label, top, visualConf)

	if s.metrics != nil {
		s.metrics.RecordDecisionSource(ctx, string(decision.Source))
	}

	upd := repository.ScanStageUpdate{
		ID:       scan.ID,
		Stage:    models.ScanStageDone,
		Decision: &decision,
	}

	summary, err := s.summarize(ctx, scan, &decision)
	if err != nil {
		s.logger.WarnContext(ctx, "pipeline: summary generation failed, completing without one", "error", err)
	} else if summary != "" {
		upd.Summary = &summary
	}

	return s.advance(ctx, scan, upd)
}

func (s *PipelineService) summarize(ctx context.Context, scan *models.ScanRecord, decision *models.CanonicalDecision) (string, error) {
	if s.summarizer == nil {
		return "", nil
	}

	if err := s.waitLimiter(ctx); err != nil {
		return "", err
	}

	ocrText := ""
	if scan.OCRText != nil {
		ocrText = *scan.OCRText
	}

	return s.summarizer.Summarize(ctx, openai.SummaryFacts{
		Decision:   decision,
		Candidates: scan.Candidates,
		OCRText:    ocrText,
		Packaging:  scan.Packaging,
	})
}

// advance performs one versioned stage write and mirrors it onto the
// in-memory record so the next stage sees what was persisted.
func (s *PipelineService) advance(ctx context.Context, scan *models.ScanRecord, upd repository.ScanStageUpdate) error {
	if !scan.Stage.CanAdvanceTo(upd.Stage) {
		return fmt.Errorf("pipeline: illegal transition %q → %q for scan %s", scan.Stage, upd.Stage, scan.ID)
	}

	skipped, err := s.scans.UpdateStage(ctx, upd, scan.Version)
	if err != nil {
		return err
	}

	if len(skipped) > 0 {
		if s.metrics != nil {
			s.metrics.RecordDegradedWrite(ctx, len(skipped))
		}

		s.logger.WarnContext(ctx, "pipeline: stage persisted without enrichment fields",
			"stage", upd.Stage,
			"skipped_fields", skipped,
		)
	}

	scan.Stage = upd.Stage
	scan.Version++

	if upd.OCRText != nil {
		scan.OCRText = upd.OCRText
	}

	if upd.Packaging != nil {
		scan.Packaging = upd.Packaging
	}

	if upd.Label != nil {
		scan.Label = upd.Label
	}

	if upd.Candidates != nil {
		scan.Candidates = upd.Candidates
	}

	if upd.Decision != nil {
		scan.Decision = upd.Decision
	}

	if upd.Summary != nil {
		scan.Summary = upd.Summary
	}

	return nil
}

// fail marks the scan as error (terminal) recording which stage failed. The
// scan is never retried under the same id; a client retries with a new scan.
func (s *PipelineService) fail(ctx context.Context, scan *models.ScanRecord, target models.ScanStage, cause error) error {
	s.logger.ErrorContext(ctx, "pipeline: stage failed",
		"stage", target,
		"error", cause,
	)

	detail := cause.Error()
	upd := repository.ScanStageUpdate{
		ID:          scan.ID,
		Stage:       models.ScanStageError,
		FailedStage: &target,
		ErrorDetail: &detail,
	}

	if _, err := s.scans.UpdateStage(ctx, upd, scan.Version); err != nil {
		if errors.Is(err, scanerrors.ErrStaleWrite) {
			s.logger.InfoContext(ctx, "pipeline: error write lost race")
			return nil
		}

		return fmt.Errorf("mark scan failed: %w", err)
	}

	return nil
}

func (s *PipelineService) recordStage(ctx context.Context, stage models.ScanStage, d time.Duration, outcome string) {
	if s.metrics == nil {
		return
	}

	s.metrics.RecordStageOutcome(ctx, string(stage), outcome)
	s.metrics.RecordStageDuration(ctx, string(stage), d, outcome)
}

func (s *PipelineService) waitLimiter(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	return nil
}
