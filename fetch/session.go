package fetch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jonwraymond/fetchcache/auth"
	"github.com/jonwraymond/fetchcache/cache"
	"github.com/jonwraymond/fetchcache/health"
	"github.com/jonwraymond/fetchcache/observe"
	"github.com/jonwraymond/fetchcache/resilience"
	"github.com/jonwraymond/fetchcache/secret"
)

// Session is the handle that owns one cache and everything that feeds it.
// Create it once at startup and pass it to every component that needs the
// cache.
type Session struct {
	Controller  *cache.Controller
	Coordinator *Coordinator
	Executor    *resilience.Executor
	Health      *health.Aggregator

	observer     observe.Observer
	ownsObserver bool
}

// SessionOption configures NewSession.
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	base      http.RoundTripper
	action    Action
	observer  observe.Observer
	providers []secret.Provider
}

// WithBaseTransport sets the transport under the auth layer.
// Default: http.DefaultTransport
func WithBaseTransport(rt http.RoundTripper) SessionOption {
	return func(o *sessionOptions) { o.base = rt }
}

// WithAction replaces the HTTP action. The auth transport is not used.
func WithAction(a Action) SessionOption {
	return func(o *sessionOptions) { o.action = a }
}

// WithObserver uses obs instead of building one from Config.Observe.
// The session does not shut obs down.
func WithObserver(obs observe.Observer) SessionOption {
	return func(o *sessionOptions) { o.observer = obs }
}

// WithSecretProvider registers an additional secret provider.
func WithSecretProvider(p secret.Provider) SessionOption {
	return func(o *sessionOptions) { o.providers = append(o.providers, p) }
}

// NewSession validates cfg and wires a controller, coordinator, resilience
// executor, telemetry and health checks.
func NewSession(ctx context.Context, cfg Config, opts ...SessionOption) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var so sessionOptions
	for _, opt := range opts {
		opt(&so)
	}

	resolver := secret.NewResolver(cfg.Secrets.Strict, secret.EnvProvider{})
	if len(cfg.Secrets.Values) > 0 {
		resolver.Register(secret.MapProvider{ProviderName: "static", Values: cfg.Secrets.Values})
	}
	for _, p := range so.providers {
		resolver.Register(p)
	}

	cacheCfg := cfg.Cache.Clone()
	headers, err := resolver.ResolveMap(ctx, cacheCfg.FetchOptions.Headers)
	if err != nil {
		return nil, fmt.Errorf("fetch: resolve default headers: %w", err)
	}
	cacheCfg.FetchOptions.Headers = headers

	s := &Session{observer: so.observer}
	if s.observer == nil {
		s.ownsObserver = true
		s.observer, err = observe.NewObserver(ctx, cfg.Observe)
		if err != nil {
			return nil, err
		}
	}

	middleware, err := observe.MiddlewareFromObserver(s.observer)
	if err != nil {
		s.shutdown(ctx)
		return nil, err
	}

	s.Executor, err = resilience.FromConfig(cfg.Resilience)
	if err != nil {
		s.shutdown(ctx)
		return nil, err
	}

	action := so.action
	if action == nil {
		client, err := newClient(ctx, cfg.Auth, resolver, so.base)
		if err != nil {
			s.shutdown(ctx)
			return nil, err
		}
		action = HTTPAction(client)
	}

	logger := s.observer.Logger()
	s.Controller = cache.New(cacheCfg,
		cache.WithLogger(logger),
		cache.WithMetrics(middleware.Metrics()),
	)
	s.Coordinator = NewCoordinator(s.Controller, action,
		WithLogger(logger),
		WithMiddleware(middleware),
		WithExecutor(s.Executor),
	)

	s.Health = health.NewAggregator()
	s.Health.Register("store", health.NewStoreChecker(s.Controller, cfg.Health.store()))
	s.Health.Register("fetch", health.NewFetchChecker(s.Coordinator, cfg.Health.fetch()))
	if cb := s.Executor.CircuitBreaker(); cb != nil {
		s.Health.Register("circuit", health.NewCircuitChecker(cb))
	}

	return s, nil
}

func (s *Session) shutdown(ctx context.Context) {
	_ = s.Close(ctx)
}

// Close flushes and stops the session's telemetry. An observer passed with
// WithObserver is left running.
func (s *Session) Close(ctx context.Context) error {
	if s == nil || !s.ownsObserver || s.observer == nil {
		return nil
	}
	obs := s.observer
	s.observer = nil
	return obs.Shutdown(ctx)
}

// Observer returns the session's telemetry observer.
func (s *Session) Observer() observe.Observer {
	return s.observer
}

// newClient builds the HTTP client used by the default action, with
// credentials from cfg attached by an auth.Transport.
func newClient(ctx context.Context, cfg AuthConfig, resolver *secret.Resolver, base http.RoundTripper) (*http.Client, error) {
	tr := &auth.Transport{Base: base, APIKeyHeader: cfg.APIKeyHeader}

	switch {
	case cfg.JWT != nil:
		key, err := resolver.ResolveValue(ctx, cfg.JWT.Key)
		if err != nil {
			return nil, fmt.Errorf("fetch: resolve jwt key: %w", err)
		}
		src, err := auth.NewJWTSource(auth.JWTConfig{
			Key:      []byte(key),
			KeyID:    cfg.JWT.KeyID,
			Issuer:   cfg.JWT.Issuer,
			Subject:  cfg.JWT.Subject,
			Audience: cfg.JWT.Audience,
			TTL:      cfg.JWT.TTL,
		})
		if err != nil {
			return nil, err
		}
		tr.Source = src
	case cfg.Token != "":
		token, err := resolver.ResolveValue(ctx, cfg.Token)
		if err != nil {
			return nil, fmt.Errorf("fetch: resolve token: %w", err)
		}
		tr.Source = auth.StaticToken(token)
	}

	if cfg.APIKey != "" {
		key, err := resolver.ResolveValue(ctx, cfg.APIKey)
		if err != nil {
			return nil, fmt.Errorf("fetch: resolve api key: %w", err)
		}
		tr.APIKey = key
	}

	if tr.Source == nil && tr.APIKey == "" {
		if base == nil {
			return &http.Client{}, nil
		}
		return &http.Client{Transport: base}, nil
	}
	return tr.Client(), nil
}
