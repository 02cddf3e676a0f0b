package observe

import (
	"context"
	"net/url"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// SpanName is the name of every fetch span.
const SpanName = "cache.fetch"

// FetchMeta describes one network fetch for telemetry purposes.
type FetchMeta struct {
	Key     string   // Cache key (required)
	URL     string   // Resolved request URL
	Domains []string // Domains the response will be filed under
	Forced  bool     // Manual refetch, issued regardless of the refetch flag
}

// DomainLabel returns the sorted domains joined by ",", or "-" when there
// are none. It keeps metric cardinality bounded by domain sets rather than keys.
func (m FetchMeta) DomainLabel() string {
	if len(m.Domains) == 0 {
		return "-"
	}
	sorted := slices.Clone(m.Domains)
	slices.Sort(sorted)
	return strings.Join(sorted, ",")
}

// RedactedURL returns URL with user info and fragment removed and every
// query value replaced by "REDACTED". Query options may carry API keys.
func (m FetchMeta) RedactedURL() string {
	if m.URL == "" {
		return ""
	}
	u, err := url.Parse(m.URL)
	if err != nil {
		base, _, _ := strings.Cut(m.URL, "?")
		return base
	}
	u.User = nil
	u.Fragment, u.RawFragment = "", ""
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			q[k] = []string{"REDACTED"}
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (m FetchMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("cache.key", m.Key),
		attribute.Bool("cache.fetch.forced", m.Forced),
	}
	if m.URL != "" {
		attrs = append(attrs, attribute.String("url.full", m.RedactedURL()))
	}
	if len(m.Domains) > 0 {
		attrs = append(attrs, attribute.StringSlice("cache.domains", m.Domains))
	}
	return attrs
}

// Tracer opens a span per network fetch.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	StartSpan(ctx context.Context, meta FetchMeta) (context.Context, trace.Span)
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		return newNoopTracer()
	}
	return &tracerImpl{tracer: t}
}

// StartSpan starts a client span carrying the fetch metadata.
func (t *tracerImpl) StartSpan(ctx context.Context, meta FetchMeta) (context.Context, trace.Span) {
	attrs := append(meta.attributes(), attribute.Bool("cache.fetch.error", false))
	return t.tracer.Start(ctx, SpanName,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("cache.fetch.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

func newNoopTracer() Tracer {
	return &noopTracer{noop: tracenoop.NewTracerProvider().Tracer("noop")}
}

func (t *noopTracer) StartSpan(ctx context.Context, _ FetchMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, SpanName)
}

func (t *noopTracer) EndSpan(span trace.Span, _ error) {
	span.End()
}
