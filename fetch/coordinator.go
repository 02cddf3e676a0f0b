package fetch

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/fetchcache/cache"
	"github.com/jonwraymond/fetchcache/observe"
	"github.com/jonwraymond/fetchcache/resilience"
)

// Request describes one cached GET.
type Request struct {
	// Path is the request path, relative to the controller's base URL, or an
	// absolute http(s) URL.
	Path string

	// Key overrides the derived cache key when set.
	Key string

	// Domains are the domains the response is filed under.
	Domains []string

	// Options are call-specific options. They take precedence over the
	// controller's default fetch options.
	Options cache.RequestOptions

	// Force issues the network call even when a fresh entry is cached.
	Force bool
}

// Result is the outcome of Coordinator.Fetch.
type Result struct {
	Key  string
	Data any

	// Fetched is true when the payload came from a network call rather than
	// the response store.
	Fetched bool

	// Shared is true when the network call was shared with other callers.
	Shared bool
}

// Coordinator ensures at most one network call is in flight per key and
// writes successful payloads through the controller.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Context: the caller's ctx bounds only how long Fetch waits. A call that
//     was issued runs to completion and stores its result even if every
//     caller has gone away.
//   - Errors: ErrUninitialized for a nil coordinator or controller; network
//     failures wrap ErrNetworkFailure and are never cached.
type Coordinator struct {
	ctrl   *cache.Controller
	action Action

	keyer      cache.Keyer
	logger     observe.Logger
	middleware *observe.Middleware
	executor   *resilience.Executor

	group  singleflight.Group
	status *statusTable
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithKeyer sets the keyer used to derive cache keys. Default: cache.DefaultKeyer
func WithKeyer(k cache.Keyer) CoordinatorOption {
	return func(c *Coordinator) {
		if k != nil {
			c.keyer = k
		}
	}
}

// WithLogger sets the coordinator's logger.
func WithLogger(l observe.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMiddleware wraps every network call with tracing, metrics and logging.
func WithMiddleware(m *observe.Middleware) CoordinatorOption {
	return func(c *Coordinator) { c.middleware = m }
}

// WithExecutor runs every network call through e.
func WithExecutor(e *resilience.Executor) CoordinatorOption {
	return func(c *Coordinator) { c.executor = e }
}

// NewCoordinator creates a coordinator writing to ctrl. A nil action uses
// HTTPAction(nil).
func NewCoordinator(ctrl *cache.Controller, action Action, opts ...CoordinatorOption) *Coordinator {
	if action == nil {
		action = HTTPAction(nil)
	}
	c := &Coordinator{
		ctrl:   ctrl,
		action: action,
		keyer:  cache.NewDefaultKeyer(),
		logger: observe.NopLogger(),
		status: newStatusTable(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) ready() error {
	if c == nil || c.status == nil {
		return cache.ErrUninitialized
	}
	if _, err := c.ctrl.Config(); err != nil {
		return err
	}
	return nil
}

// Controller returns the controller the coordinator writes to.
func (c *Coordinator) Controller() *cache.Controller {
	if c == nil {
		return nil
	}
	return c.ctrl
}

// Key returns the cache key for req.
func (c *Coordinator) Key(req Request) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	if req.Key != "" {
		if err := cache.ValidateKey(req.Key); err != nil {
			return "", fmt.Errorf("%w: %w", ErrMisconfiguredKey, err)
		}
		return req.Key, nil
	}
	key, err := c.keyer.Key(req.Path, req.Options)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrMisconfiguredKey, req.Path, err)
	}
	return key, nil
}

// Fetch returns the cached payload for req, or issues the network call when
// the key has no entry, its entry is flagged for refetch, or req.Force is
// set. Callers arriving while a call for the same key is in flight wait for
// that call instead of issuing their own.
func (c *Coordinator) Fetch(ctx context.Context, req Request) (Result, error) {
	key, err := c.Key(req)
	if err != nil {
		return Result{}, err
	}

	if !req.Force {
		if entry, ok, _ := c.ctrl.Entry(key); ok && !entry.RefetchRequested {
			return Result{Key: key, Data: entry.Data}, nil
		}
	}

	cfg, _ := c.ctrl.Config()
	opts := cache.Merge(cfg.FetchOptions, req.Options)
	url, err := resolveURL(cfg.BaseURL, req.Path, opts.Query)
	if err != nil {
		err = networkError(err, key, req.Path)
		c.status.set(key, StatusFailed, err, true)
		return Result{Key: key}, err
	}

	meta := observe.FetchMeta{Key: key, URL: url, Domains: req.Domains, Forced: req.Force}

	ch := c.group.DoChan(key, func() (any, error) {
		return c.run(context.WithoutCancel(ctx), meta, opts)
	})

	select {
	case res := <-ch:
		if res.Shared && c.middleware != nil {
			c.middleware.Metrics().RecordShared(ctx, meta)
		}
		out := Result{Key: key, Shared: res.Shared}
		if res.Err != nil {
			return out, res.Err
		}
		f := res.Val.(flight)
		out.Data, out.Fetched = f.data, f.fetched
		return out, nil
	case <-ctx.Done():
		return Result{Key: key}, ctx.Err()
	}
}

// flight is the value shared by the callers of one in-flight call.
type flight struct {
	data    any
	fetched bool
}

func (c *Coordinator) run(ctx context.Context, meta observe.FetchMeta, opts cache.RequestOptions) (any, error) {
	// The key may have been refreshed between the caller's lookup and the
	// start of this flight.
	if !meta.Forced {
		if entry, ok, _ := c.ctrl.Entry(meta.Key); ok && !entry.RefetchRequested {
			return flight{data: entry.Data}, nil
		}
	}

	revision, err := c.ctrl.Revision()
	if err != nil {
		return nil, err
	}

	c.status.set(meta.Key, StatusFetching, nil, true)
	c.logger.WithFetch(meta).Debug(ctx, "fetch started")

	data, err := c.call(ctx, meta, opts)
	if err != nil {
		err = networkError(err, meta.Key, meta.URL)
		c.status.set(meta.Key, StatusFailed, err, true)
		return nil, err
	}

	// Observers are notified by the controller write.
	c.status.set(meta.Key, StatusSucceeded, nil, false)
	if err := c.ctrl.AddResponse(ctx, cache.Response{
		Key:      meta.Key,
		Domains:  meta.Domains,
		Data:     data,
		Revision: revision,
	}); err != nil {
		return nil, err
	}
	return flight{data: data, fetched: true}, nil
}

func (c *Coordinator) call(ctx context.Context, meta observe.FetchMeta, opts cache.RequestOptions) (any, error) {
	fn := func(ctx context.Context, meta observe.FetchMeta) (any, error) {
		if c.executor == nil {
			return c.action(ctx, meta.URL, opts)
		}
		var data any
		err := c.executor.Execute(ctx, func(ctx context.Context) error {
			d, err := c.action(ctx, meta.URL, opts)
			data = d
			return err
		})
		return data, err
	}
	if c.middleware != nil {
		fn = c.middleware.Wrap(fn)
	}
	return fn(ctx, meta)
}

// Status returns the fetch status of key.
func (c *Coordinator) Status(key string) (KeyStatus, error) {
	if err := c.ready(); err != nil {
		return KeyStatus{}, err
	}
	return c.status.get(key), nil
}

// Watch registers fn for fetch status changes of key. The returned function
// unregisters it.
func (c *Coordinator) Watch(key string, fn StatusListener) (func(), error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.status.watch(key, fn), nil
}

// FailureStats returns how many keys have been fetched and how many of them
// failed on their last call.
func (c *Coordinator) FailureStats() (total, failed int, err error) {
	if err := c.ready(); err != nil {
		return 0, 0, err
	}
	total, failed = c.status.counts()
	return total, failed, nil
}
