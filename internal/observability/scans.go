package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ScanMetrics records pipeline outcomes. All call sites accept nil when
// metrics are disabled.
type ScanMetrics interface {
	RecordScanCreated(ctx context.Context)
	RecordStageOutcome(ctx context.Context, stage, outcome string)
	RecordStageDuration(ctx context.Context, stage string, duration time.Duration, outcome string)
	RecordDecisionSource(ctx context.Context, source string)
	RecordDegradedWrite(ctx context.Context, skippedFields int)
	RecordEnqueueError(ctx context.Context, reason string)
}

// Metrics bundles the instrument groups exposed to the rest of the app.
type Metrics struct {
	Scans ScanMetrics
	Cache CacheMetrics
	HTTP  HTTPMetrics
}

// NewMetrics creates all instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	scans, err := newScanMetrics(meter)
	if err != nil {
		return nil, err
	}

	cache, err := newCacheMetrics(meter)
	if err != nil {
		return nil, err
	}

	httpMetrics, err := newHTTPMetrics(meter)
	if err != nil {
		return nil, err
	}

	return &Metrics{Scans: scans, Cache: cache, HTTP: httpMetrics}, nil
}

type scanMetricsImpl struct {
	scansCreated    metric.Int64Counter
	stageOutcomes   metric.Int64Counter
	stageDuration   metric.Float64Histogram
	decisionSources metric.Int64Counter
	degradedWrites  metric.Int64Counter
	enqueueErrors   metric.Int64Counter
}

func newScanMetrics(meter metric.Meter) (*scanMetricsImpl, error) {
	scansCreated, err := meter.Int64Counter(
		"scanhub_scans_created_total",
		metric.WithDescription("Total scan records created"),
	)
	if err != nil {
		return nil, fmt.Errorf("scans_created_total: %w", err)
	}

	stageOutcomes, err := meter.Int64Counter(
		"scanhub_stage_outcomes_total",
		metric.WithDescription("Pipeline stage completions by stage and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("stage_outcomes_total: %w", err)
	}

	stageDuration, err := meter.Float64Histogram(
		"scanhub_stage_duration_seconds",
		metric.WithDescription("Pipeline stage duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("stage_duration_seconds: %w", err)
	}

	decisionSources, err := meter.Int64Counter(
		"scanhub_decision_sources_total",
		metric.WithDescription("Canonical decisions by source (packaging, visual, none, ...)"),
	)
	if err != nil {
		return nil, fmt.Errorf("decision_sources_total: %w", err)
	}

	degradedWrites, err := meter.Int64Counter(
		"scanhub_degraded_writes_total",
		metric.WithDescription("Stage writes that dropped enrichment fields due to schema lag"),
	)
	if err != nil {
		return nil, fmt.Errorf("degraded_writes_total: %w", err)
	}

	enqueueErrors, err := meter.Int64Counter(
		"scanhub_pipeline_enqueue_errors_total",
		metric.WithDescription("Failures enqueueing pipeline jobs"),
	)
	if err != nil {
		return nil, fmt.Errorf("pipeline_enqueue_errors_total: %w", err)
	}

	return &scanMetricsImpl{
		scansCreated:    scansCreated,
		stageOutcomes:   stageOutcomes,
		stageDuration:   stageDuration,
		decisionSources: decisionSources,
		degradedWrites:  degradedWrites,
		enqueueErrors:   enqueueErrors,
	}, nil
}

func (m *scanMetricsImpl) RecordScanCreated(ctx context.Context) {
	m.scansCreated.Add(ctx, 1)
}

func (m *scanMetricsImpl) RecordStageOutcome(ctx context.Context, stage, outcome string) {
	m.stageOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
	))
}

func (m *scanMetricsImpl) RecordStageDuration(ctx context.Context, stage string, duration time.Duration, outcome string) {
	m.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
	))
}

func (m *scanMetricsImpl) RecordDecisionSource(ctx context.Context, source string) {
	m.decisionSources.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

func (m *scanMetricsImpl) RecordDegradedWrite(ctx context.Context, skippedFields int) {
	m.degradedWrites.Add(ctx, 1, metric.WithAttributes(attribute.Int("skipped_fields", skippedFields)))
}

func (m *scanMetricsImpl) RecordEnqueueError(ctx context.Context, reason string) {
	m.enqueueErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
