package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jonwraymond/fetchcache/cache"
	"github.com/jonwraymond/fetchcache/observe"
	"github.com/jonwraymond/fetchcache/resilience"
)

const testBaseURL = "https://api.example.com"

// recorder is a scripted Action that counts calls.
type recorder struct {
	calls   atomic.Int32
	started chan string
	release chan struct{}

	mu    sync.Mutex
	urls  []string
	opts  []cache.RequestOptions
	reply func(n int, url string) (any, error)
}

func newRecorder(reply func(n int, url string) (any, error)) *recorder {
	return &recorder{started: make(chan string, 16), reply: reply}
}

// gated makes every call wait until open is called.
func (r *recorder) gated() *recorder {
	r.release = make(chan struct{})
	return r
}

func (r *recorder) open() { close(r.release) }

func (r *recorder) action(ctx context.Context, url string, opts cache.RequestOptions) (any, error) {
	n := int(r.calls.Add(1))
	r.mu.Lock()
	r.urls = append(r.urls, url)
	r.opts = append(r.opts, opts)
	r.mu.Unlock()

	r.started <- url
	if r.release != nil {
		<-r.release
	}
	if r.reply == nil {
		return json.RawMessage(`{"n":1}`), nil
	}
	return r.reply(n, url)
}

func (r *recorder) count() int { return int(r.calls.Load()) }

func newTestCoordinator(t *testing.T, rec *recorder, opts ...CoordinatorOption) (*cache.Controller, *Coordinator) {
	t.Helper()
	ctrl := cache.New(cache.Config{BaseURL: testBaseURL})
	return ctrl, NewCoordinator(ctrl, rec.action, opts...)
}

func TestCoordinator_FetchMissThenHit(t *testing.T) {
	rec := newRecorder(nil)
	ctrl, co := newTestCoordinator(t, rec)
	ctx := context.Background()

	res, err := co.Fetch(ctx, Request{Path: "/users", Domains: []string{"users"}})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !res.Fetched || res.Key != "/users" {
		t.Errorf("Fetch() = %+v, want fetched /users", res)
	}
	if got := rec.urls[0]; got != testBaseURL+"/users" {
		t.Errorf("url = %q", got)
	}

	res, err = co.Fetch(ctx, Request{Path: "/users", Domains: []string{"users"}})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.Fetched {
		t.Error("second Fetch() hit the network")
	}
	if rec.count() != 1 {
		t.Errorf("calls = %d, want 1", rec.count())
	}

	keys, _ := ctrl.Domain("users")
	if len(keys) != 1 || keys[0] != "/users" {
		t.Errorf("users domain = %v", keys)
	}
	ks, _ := co.Status("/users")
	if ks.Status != StatusSucceeded {
		t.Errorf("Status = %v, want succeeded", ks.Status)
	}
}

func TestCoordinator_ConcurrentFetchesShareOneCall(t *testing.T) {
	rec := newRecorder(nil).gated()
	_, co := newTestCoordinator(t, rec)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	results := make([]Result, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = co.Fetch(ctx, Request{Path: "/posts"})
		}()
	}

	<-rec.started
	ks, _ := co.Status("/posts")
	if ks.Status != StatusFetching {
		t.Errorf("Status while in flight = %v, want fetching", ks.Status)
	}
	rec.open()
	wg.Wait()

	if rec.count() != 1 {
		t.Fatalf("calls = %d, want 1", rec.count())
	}
	for i := range n {
		if errs[i] != nil {
			t.Fatalf("Fetch()[%d] error = %v", i, errs[i])
		}
		if string(results[i].Data.(json.RawMessage)) != `{"n":1}` {
			t.Errorf("Fetch()[%d] data = %s", i, results[i].Data)
		}
	}
}

func TestCoordinator_StaleEntryRefetchedOnce(t *testing.T) {
	rec := newRecorder(func(int, string) (any, error) { return "fresh", nil })
	ctrl, co := newTestCoordinator(t, rec)
	ctx := context.Background()

	_ = ctrl.AddResponse(ctx, cache.Response{Key: "/posts", Domains: []string{"posts"}, Data: "old"})
	_ = ctrl.ClearDomains(ctx, "posts")

	res, err := co.Fetch(ctx, Request{Path: "/posts", Domains: []string{"posts"}})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.Data != "fresh" || rec.count() != 1 {
		t.Fatalf("Fetch() = %+v after %d calls", res, rec.count())
	}

	entry, _, _ := ctrl.Entry("/posts")
	if entry.RefetchRequested || entry.Data != "fresh" {
		t.Errorf("entry = %+v, want fresh and not flagged", entry)
	}
}

func TestCoordinator_Force(t *testing.T) {
	rec := newRecorder(nil)
	ctrl, co := newTestCoordinator(t, rec)
	ctx := context.Background()
	_ = ctrl.AddResponse(ctx, cache.Response{Key: "/me", Data: "cached"})

	res, err := co.Fetch(ctx, Request{Path: "/me", Force: true})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !res.Fetched || rec.count() != 1 {
		t.Errorf("forced Fetch() = %+v after %d calls", res, rec.count())
	}
}

func TestCoordinator_FailureNotCached(t *testing.T) {
	boom := errors.New("connection refused")
	rec := newRecorder(func(int, string) (any, error) { return nil, boom })
	ctrl, co := newTestCoordinator(t, rec)
	ctx := context.Background()

	_ = ctrl.AddResponse(ctx, cache.Response{Key: "/users", Domains: []string{"users"}, Data: "stale"})
	_ = ctrl.AddResponse(ctx, cache.Response{Key: "/other", Domains: []string{"other"}, Data: "other"})
	_ = ctrl.ClearDomains(ctx, "users")

	_, err := co.Fetch(ctx, Request{Path: "/users", Domains: []string{"users"}})
	if !errors.Is(err, ErrNetworkFailure) || !errors.Is(err, boom) {
		t.Fatalf("Fetch() error = %v, want network failure wrapping cause", err)
	}
	meta := ErrorMetadata(err)
	if meta["key"] != "/users" || meta["url"] != testBaseURL+"/users" {
		t.Errorf("metadata = %v", meta)
	}

	entry, _, _ := ctrl.Entry("/users")
	if entry.Data != "stale" || !entry.RefetchRequested {
		t.Errorf("entry = %+v, want stale payload still flagged", entry)
	}
	other, _, _ := ctrl.Entry("/other")
	if other.RefetchRequested {
		t.Error("failure affected another key")
	}

	ks, _ := co.Status("/users")
	if ks.Status != StatusFailed || !errors.Is(ks.Err, boom) {
		t.Errorf("Status = %+v, want failed", ks)
	}
	total, failed, _ := co.FailureStats()
	if total != 1 || failed != 1 {
		t.Errorf("FailureStats() = %d, %d", total, failed)
	}

	// The flag is still set, so the next call retries.
	_, _ = co.Fetch(ctx, Request{Path: "/users", Domains: []string{"users"}})
	if rec.count() != 2 {
		t.Errorf("calls = %d, want 2", rec.count())
	}
}

func TestCoordinator_OptionMerge(t *testing.T) {
	rec := newRecorder(nil)
	ctrl := cache.New(cache.Config{
		BaseURL: testBaseURL,
		FetchOptions: cache.RequestOptions{
			Headers:     map[string]string{"X-Tenant": "acme", "Accept-Language": "en"},
			Query:       map[string]string{"page": "1", "limit": "10"},
			Credentials: "include",
		},
	})
	co := NewCoordinator(ctrl, rec.action)

	res, err := co.Fetch(context.Background(), Request{
		Path: "/posts",
		Options: cache.RequestOptions{
			Headers: map[string]string{"Accept-Language": "de"},
			Query:   map[string]string{"page": "2"},
		},
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !strings.HasPrefix(res.Key, "/posts#") {
		t.Errorf("Key = %q, want hashed options suffix", res.Key)
	}

	opts := rec.opts[0]
	if opts.Headers["X-Tenant"] != "acme" || opts.Headers["Accept-Language"] != "de" {
		t.Errorf("headers = %v", opts.Headers)
	}
	if opts.Credentials != "include" {
		t.Errorf("credentials = %q", opts.Credentials)
	}
	if want := testBaseURL + "/posts?limit=10&page=2"; rec.urls[0] != want {
		t.Errorf("url = %q, want %q", rec.urls[0], want)
	}
}

func TestCoordinator_MisconfiguredKey(t *testing.T) {
	rec := newRecorder(nil)
	_, co := newTestCoordinator(t, rec)
	noBase := NewCoordinator(cache.New(cache.Config{}), rec.action)

	tests := []struct {
		name string
		co   *Coordinator
		path string
	}{
		{"empty path", co, ""},
		{"whitespace", co, "   "},
		{"newline", co, "/users\n"},
		{"too long", co, "/" + strings.Repeat("a", cache.MaxKeyLength)},
		{"relative without base url", noBase, "/users"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.co.Fetch(context.Background(), Request{Path: tt.path})
			if !errors.Is(err, ErrMisconfiguredKey) || !errors.Is(err, ErrNetworkFailure) {
				t.Errorf("Fetch() error = %v, want ErrMisconfiguredKey", err)
			}
		})
	}
	if rec.count() != 0 {
		t.Errorf("calls = %d, want 0", rec.count())
	}
}

func TestCoordinator_Uninitialized(t *testing.T) {
	var nilCo *Coordinator
	if _, err := nilCo.Fetch(context.Background(), Request{Path: "/x"}); !errors.Is(err, cache.ErrUninitialized) {
		t.Errorf("nil coordinator error = %v", err)
	}

	co := NewCoordinator(&cache.Controller{}, nil)
	if _, err := co.Fetch(context.Background(), Request{Path: "/x"}); !errors.Is(err, cache.ErrUninitialized) {
		t.Errorf("zero controller error = %v", err)
	}
	if _, err := co.Status("/x"); !errors.Is(err, cache.ErrUninitialized) {
		t.Errorf("Status() error = %v", err)
	}
}

func TestCoordinator_ClearDuringFlightMarksStale(t *testing.T) {
	rec := newRecorder(nil).gated()
	ctrl, co := newTestCoordinator(t, rec)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := co.Fetch(ctx, Request{Path: "/users", Domains: []string{"users"}})
		done <- err
	}()

	<-rec.started
	_ = ctrl.ClearDomains(ctx, "users")
	rec.open()
	if err := <-done; err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	entry, ok, _ := ctrl.Entry("/users")
	if !ok || !entry.RefetchRequested {
		t.Fatalf("entry = %+v, want stored and flagged for refetch", entry)
	}
}

func TestCoordinator_ClearOfExistingDomainDuringFlightMarksStale(t *testing.T) {
	rec := newRecorder(nil).gated()
	ctrl, co := newTestCoordinator(t, rec)
	ctx := context.Background()
	_ = ctrl.AddResponse(ctx, cache.Response{Key: "/k", Domains: []string{"users"}, Data: 1})

	done := make(chan error, 1)
	go func() {
		_, err := co.Fetch(ctx, Request{Path: "/k", Domains: []string{"posts"}, Force: true})
		done <- err
	}()

	<-rec.started
	_ = ctrl.ClearDomains(ctx, "users")
	rec.open()
	if err := <-done; err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	entry, ok, _ := ctrl.Entry("/k")
	if !ok || !entry.RefetchRequested {
		t.Fatalf("entry = %+v, want stored and flagged for refetch", entry)
	}
	if users, _ := ctrl.Domain("users"); !slices.Contains(users, "/k") {
		t.Errorf("users = %v, want /k kept", users)
	}
}

func TestCoordinator_CallerCancelDoesNotCancelFlight(t *testing.T) {
	rec := newRecorder(nil).gated()
	ctrl, co := newTestCoordinator(t, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := co.Fetch(ctx, Request{Path: "/users"})
		done <- err
	}()

	<-rec.started
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Fetch() error = %v, want context.Canceled", err)
	}
	rec.open()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok, _ := ctrl.Entry("/users"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("abandoned fetch never stored its result")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCoordinator_Middleware(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	mw := observe.NewMiddleware(observe.NewTracer(tp.Tracer("test")), nil, nil)

	rec := newRecorder(nil)
	_, co := newTestCoordinator(t, rec, WithMiddleware(mw))

	if _, err := co.Fetch(context.Background(), Request{Path: "/users"}); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name() != observe.SpanName {
		t.Errorf("span name = %q, want %q", spans[0].Name(), observe.SpanName)
	}
}

func TestCoordinator_ExecutorRetries(t *testing.T) {
	rec := newRecorder(func(n int, _ string) (any, error) {
		if n == 1 {
			return nil, errors.New("temporary")
		}
		return "ok", nil
	})
	exec := resilience.NewExecutor(resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
	})))
	_, co := newTestCoordinator(t, rec, WithExecutor(exec))

	res, err := co.Fetch(context.Background(), Request{Path: "/users"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.Data != "ok" || rec.count() != 2 {
		t.Errorf("Fetch() = %+v after %d calls", res, rec.count())
	}
}

func TestCoordinator_Watch(t *testing.T) {
	rec := newRecorder(nil)
	_, co := newTestCoordinator(t, rec)

	var mu sync.Mutex
	var seen []Status
	stop, err := co.Watch("/users", func(_ string, s Status, _ error) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer stop()

	if _, err := co.Fetch(context.Background(), Request{Path: "/users"}); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != StatusFetching {
		t.Errorf("seen = %v, want [fetching]", seen)
	}
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusIdle, "idle"},
		{StatusFetching, "fetching"},
		{StatusSucceeded, "succeeded"},
		{StatusFailed, "failed"},
		{Status(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
