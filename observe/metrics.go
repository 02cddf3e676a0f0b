package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names.
const (
	MetricFetchTotal     = "cache.fetch.total"
	MetricFetchErrors    = "cache.fetch.errors"
	MetricFetchDuration  = "cache.fetch.duration_ms"
	MetricFetchShared    = "cache.fetch.shared"
	MetricInvalidations  = "cache.invalidations"
	MetricInvalidatedKey = "cache.invalidated_keys"
)

// Metrics records fetch and invalidation metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines and return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordFetch records one network fetch with its duration and outcome.
	RecordFetch(ctx context.Context, meta FetchMeta, duration time.Duration, err error)

	// RecordShared records a caller that attached to an in-flight fetch.
	RecordShared(ctx context.Context, meta FetchMeta)

	// RecordInvalidation records a ClearDomains call and how many entries it flagged.
	RecordInvalidation(ctx context.Context, domains []string, affected int)
}

type metricsImpl struct {
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	sharedCount  metric.Int64Counter
	durationHist metric.Float64Histogram
	invalidCount metric.Int64Counter
	invalidKeys  metric.Int64Counter
}

// NewMetrics creates the fetch instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	return newMetrics(meter)
}

func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	m := &metricsImpl{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.totalCount, MetricFetchTotal, "Network fetches issued by the cache", "{request}"},
		{&m.errorCount, MetricFetchErrors, "Network fetches that failed", "{error}"},
		{&m.sharedCount, MetricFetchShared, "Callers that joined an in-flight fetch", "{call}"},
		{&m.invalidCount, MetricInvalidations, "Domain invalidation calls", "{call}"},
		{&m.invalidKeys, MetricInvalidatedKey, "Entries flagged for refetch", "{entry}"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, err
		}
	}

	m.durationHist, err = meter.Float64Histogram(MetricFetchDuration,
		metric.WithDescription("Network fetch duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *metricsImpl) RecordFetch(ctx context.Context, meta FetchMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(
		attribute.String("cache.domains", meta.DomainLabel()),
		attribute.Bool("cache.fetch.forced", meta.Forced),
	)

	m.totalCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordShared(ctx context.Context, meta FetchMeta) {
	m.sharedCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.domains", meta.DomainLabel()),
	))
}

func (m *metricsImpl) RecordInvalidation(ctx context.Context, domains []string, affected int) {
	opt := metric.WithAttributes(
		attribute.String("cache.domains", FetchMeta{Domains: domains}.DomainLabel()),
	)
	m.invalidCount.Add(ctx, 1, opt)
	m.invalidKeys.Add(ctx, int64(affected), opt)
}

type noopMetrics struct{}

// NopMetrics returns Metrics that record nothing.
func NopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordFetch(context.Context, FetchMeta, time.Duration, error) {}
func (noopMetrics) RecordShared(context.Context, FetchMeta)                      {}
func (noopMetrics) RecordInvalidation(context.Context, []string, int)            {}
