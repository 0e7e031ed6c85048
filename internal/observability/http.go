package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics records inbound HTTP request counts and durations.
type HTTPMetrics interface {
	RecordRequest(ctx context.Context, method, route, statusClass string, duration time.Duration)
	RecordRequestBodyTooLarge(ctx context.Context)
}

type httpMetricsImpl struct {
	requests     metric.Int64Counter
	duration     metric.Float64Histogram
	bodyTooLarge metric.Int64Counter
}

func newHTTPMetrics(meter metric.Meter) (*httpMetricsImpl, error) {
	requests, err := meter.Int64Counter(
		"scanhub_http_requests_total",
		metric.WithDescription("HTTP requests by method, route, and status class"),
	)
	if err != nil {
		return nil, fmt.Errorf("http_requests_total: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"scanhub_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("http_request_duration_seconds: %w", err)
	}

	bodyTooLarge, err := meter.Int64Counter(
		"scanhub_http_request_body_too_large_total",
		metric.WithDescription("Requests rejected for exceeding the body size limit"),
	)
	if err != nil {
		return nil, fmt.Errorf("http_request_body_too_large_total: %w", err)
	}

	return &httpMetricsImpl{requests: requests, duration: duration, bodyTooLarge: bodyTooLarge}, nil
}

func (m *httpMetricsImpl) RecordRequest(ctx context.Context, method, route, statusClass string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status_class", statusClass),
	)

	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, duration.Seconds(), attrs)
}

func (m *httpMetricsImpl) RecordRequestBodyTooLarge(ctx context.Context) {
	m.bodyTooLarge.Add(ctx, 1)
}
