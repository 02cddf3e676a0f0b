package cache

import (
	"context"
	"slices"
	"sync"

	"github.com/jonwraymond/fetchcache/observe"
)

// Controller owns the domain index and the response store and is their only
// writer. A single lock covers both so AddResponse appears atomic to readers.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: every method returns ErrUninitialized on a nil or zero-value
//   Controller; mutations cannot fail otherwise.
type Controller struct {
	mu    sync.RWMutex
	state State

	// revision is bumped by every ClearDomains; clearedAt records the
	// revision at which each domain was last cleared.
	revision  uint64
	clearedAt map[string]uint64

	config  Config
	subs    *registry
	logger  observe.Logger
	metrics observe.Metrics
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for mutation debug logs.
func WithLogger(l observe.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records invalidations on m.
func WithMetrics(m observe.Metrics) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// New creates a controller with an empty cache.
func New(cfg Config, opts ...Option) *Controller {
	c := &Controller{
		state:     NewState(),
		revision:  1,
		clearedAt: make(map[string]uint64),
		config:    cfg.Clone(),
		subs:      newRegistry(),
		logger:    observe.NopLogger(),
		metrics:   observe.NopMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) ready() bool {
	return c != nil && c.subs != nil
}

// Config returns a copy of the configuration the controller was built with.
func (c *Controller) Config() (Config, error) {
	if !c.ready() {
		return Config{}, ErrUninitialized
	}
	return c.config.Clone(), nil
}

// Revision returns the current invalidation revision. It starts at 1 and
// grows with every ClearDomains call.
func (c *Controller) Revision() (uint64, error) {
	if !c.ready() {
		return 0, ErrUninitialized
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.revision, nil
}

// AddResponse stores r and adds r.Key to each of r.Domains, then notifies
// subscribers of the key and of those domains.
//
// A response with a non-zero Revision is stored already flagged for refetch
// when a domain it is filed under, or one the key already belongs to, was
// cleared after that revision.
func (c *Controller) AddResponse(ctx context.Context, r Response) error {
	if !c.ready() {
		return ErrUninitialized
	}
	r.Domains = uniqueNames(r.Domains)

	c.mu.Lock()
	stale := c.clearedSinceLocked(r.Key, r.Domains, r.Revision)
	c.state.addResponse(r, stale)
	entry := c.state.Responses[r.Key]
	c.mu.Unlock()

	ev := Event{Kind: EventAdded, Key: r.Key, Entry: entry}
	deliveries := c.subs.collect(c.subs.byKey, r.Key, ev, nil)
	for _, name := range r.Domains {
		dev := ev
		dev.Domain = name
		deliveries = c.subs.collect(c.subs.byDomain, name, dev, deliveries)
	}

	c.logger.Debug(ctx, "response added",
		observe.Field{Key: "cache.key", Value: r.Key},
		observe.Field{Key: "cache.domains", Value: r.Domains},
		observe.Field{Key: "cache.stale", Value: stale},
	)

	dispatch(deliveries)
	return nil
}

// clearedSinceLocked reports whether a domain of key was cleared after
// revision, looking up key in the index for every domain cleared since.
func (c *Controller) clearedSinceLocked(key string, domains []string, revision uint64) bool {
	if revision == 0 {
		return false
	}
	for name, at := range c.clearedAt {
		if at <= revision {
			continue
		}
		if slices.Contains(domains, name) || slices.Contains(c.state.Domains[name], key) {
			return true
		}
	}
	return false
}

// ClearDomains flags every existing entry in the named domains for refetch,
// keeping its payload, then notifies subscribers of every affected key.
// Unknown domains are ignored. Calling it twice in a row has the same effect
// on the store as calling it once.
func (c *Controller) ClearDomains(ctx context.Context, domains ...string) error {
	if !c.ready() {
		return ErrUninitialized
	}

	domains = uniqueNames(domains)

	c.mu.Lock()
	c.revision++
	for _, name := range domains {
		c.clearedAt[name] = c.revision
	}
	affected := c.state.clearDomains(domains)

	var deliveries []delivery
	for _, key := range affected {
		ev := Event{Kind: EventInvalidated, Key: key, Entry: c.state.Responses[key]}
		deliveries = c.subs.collect(c.subs.byKey, key, ev, deliveries)
	}
	for _, name := range domains {
		for _, key := range c.state.Domains[name] {
			if !slices.Contains(affected, key) {
				continue
			}
			ev := Event{Kind: EventInvalidated, Key: key, Entry: c.state.Responses[key], Domain: name}
			deliveries = c.subs.collect(c.subs.byDomain, name, ev, deliveries)
		}
	}
	c.mu.Unlock()

	c.metrics.RecordInvalidation(ctx, domains, len(affected))
	c.logger.Debug(ctx, "domains cleared",
		observe.Field{Key: "cache.domains", Value: domains},
		observe.Field{Key: "cache.affected", Value: len(affected)},
	)

	dispatch(deliveries)
	return nil
}

// Entry returns the entry stored for key.
func (c *Controller) Entry(key string) (Entry, bool, error) {
	if !c.ready() {
		return Entry{}, false, ErrUninitialized
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.state.Responses[key]
	return entry, ok, nil
}

// Domain returns the keys that belong to the named domain.
func (c *Controller) Domain(name string) ([]string, error) {
	if !c.ready() {
		return nil, ErrUninitialized
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.state.Domains[name]), nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() (State, error) {
	if !c.ready() {
		return State{}, ErrUninitialized
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Clone(), nil
}

// Stats summarizes the store.
type Stats struct {
	Entries  int
	Stale    int
	Domains  int
	Revision uint64
}

// Stats returns store statistics.
func (c *Controller) Stats() (Stats, error) {
	if !c.ready() {
		return Stats{}, ErrUninitialized
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Stats{
		Entries:  len(c.state.Responses),
		Domains:  len(c.state.Domains),
		Revision: c.revision,
	}
	for _, entry := range c.state.Responses {
		if entry.RefetchRequested {
			st.Stale++
		}
	}
	return st, nil
}

// Subscribe registers fn for events on key.
func (c *Controller) Subscribe(key string, fn Listener) (*Subscription, error) {
	if !c.ready() {
		return nil, ErrUninitialized
	}
	return c.subs.add(c.subs.byKey, key, fn), nil
}

// SubscribeDomain registers fn for events on every key of the named domain.
// Each mutation delivers at most one event per key to fn.
func (c *Controller) SubscribeDomain(domain string, fn Listener) (*Subscription, error) {
	if !c.ready() {
		return nil, ErrUninitialized
	}
	return c.subs.add(c.subs.byDomain, domain, fn), nil
}

// uniqueNames drops repeated names, keeping first-seen order.
func uniqueNames(names []string) []string {
	if len(names) < 2 {
		return names
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}
