package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CacheMetrics records hits and misses per named cache.
type CacheMetrics interface {
	RecordHit(ctx context.Context, cacheName string)
	RecordMiss(ctx context.Context, cacheName string)
}

type cacheMetricsImpl struct {
	hits   metric.Int64Counter
	misses metric.Int64Counter
}

func newCacheMetrics(meter metric.Meter) (*cacheMetricsImpl, error) {
	hits, err := meter.Int64Counter(
		"scanhub_cache_hits_total",
		metric.WithDescription("Cache hits by cache name"),
	)
	if err != nil {
		return nil, fmt.Errorf("cache_hits_total: %w", err)
	}

	misses, err := meter.Int64Counter(
		"scanhub_cache_misses_total",
		metric.WithDescription("Cache misses by cache name"),
	)
	if err != nil {
		return nil, fmt.Errorf("cache_misses_total: %w", err)
	}

	return &cacheMetricsImpl{hits: hits, misses: misses}, nil
}

func (m *cacheMetricsImpl) RecordHit(ctx context.Context, cacheName string) {
	m.hits.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", cacheName)))
}

func (m *cacheMetricsImpl) RecordMiss(ctx context.Context, cacheName string) {
	m.misses.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", cacheName)))
}
