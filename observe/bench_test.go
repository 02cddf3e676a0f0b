package observe

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// BenchmarkLogger_Info measures a single structured entry.
func BenchmarkLogger_Info(b *testing.B) {
	logger := NewLoggerWithWriter("info", io.Discard)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info(ctx, "fetch completed", Field{Key: "duration_ms", Value: 12.0})
	}
}

// BenchmarkLogger_WithFetch_ThenLog measures tagging plus logging.
func BenchmarkLogger_WithFetch_ThenLog(b *testing.B) {
	logger := NewLoggerWithWriter("info", io.Discard)
	ctx := context.Background()
	meta := FetchMeta{Key: "/users", URL: "https://api.example.com/users", Domains: []string{"users"}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.WithFetch(meta).Info(ctx, "fetch completed")
	}
}

// BenchmarkLogger_LevelFiltering measures a filtered-out entry.
func BenchmarkLogger_LevelFiltering(b *testing.B) {
	logger := NewLoggerWithWriter("error", io.Discard)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Debug(ctx, "filtered", Field{Key: "k", Value: i})
	}
}

// BenchmarkFetchMeta_DomainLabel measures label construction.
func BenchmarkFetchMeta_DomainLabel(b *testing.B) {
	meta := FetchMeta{Domains: []string{"users", "posts", "comments"}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = meta.DomainLabel()
	}
}

// BenchmarkMetrics_RecordFetch measures metric recording.
func BenchmarkMetrics_RecordFetch(b *testing.B) {
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	m, err := newMetrics(mp.Meter("bench"))
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	meta := FetchMeta{Key: "/users", Domains: []string{"users"}}
	boom := errors.New("boom")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var err error
		if i%10 == 0 {
			err = boom
		}
		m.RecordFetch(ctx, meta, time.Millisecond, err)
	}
}

// BenchmarkMiddleware_Wrap measures the full instrumentation path.
func BenchmarkMiddleware_Wrap(b *testing.B) {
	tp := sdktrace.NewTracerProvider()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	m, _ := newMetrics(mp.Meter("bench"))
	mw := NewMiddleware(NewTracer(tp.Tracer("bench")), m, NewLoggerWithWriter("info", io.Discard))

	fn := mw.Wrap(func(ctx context.Context, meta FetchMeta) (any, error) {
		return nil, nil
	})
	ctx := context.Background()
	meta := FetchMeta{Key: "/users"}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = fn(ctx, meta)
		}
	})
}

// BenchmarkConfig_Validate measures validation.
func BenchmarkConfig_Validate(b *testing.B) {
	cfg := Config{
		ServiceName: "bench",
		Tracing:     TracingConfig{Enabled: true, Exporter: "otlp", SamplePct: 0.1},
		Metrics:     MetricsConfig{Enabled: true, Exporter: "prometheus"},
		Logging:     LoggingConfig{Enabled: true, Level: "info"},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cfg.Validate()
	}
}
