package health

import (
	"context"
	"fmt"

	"github.com/jonwraymond/fetchcache/cache"
	"github.com/jonwraymond/fetchcache/resilience"
)

// StatsSource reports response store statistics. *cache.Controller
// implements it.
type StatsSource interface {
	Stats() (cache.Stats, error)
}

// StoreCheckerConfig configures a StoreChecker.
type StoreCheckerConfig struct {
	// StaleThreshold is the share of entries flagged for refetch at which the
	// store reports degraded. Value should be between 0 and 1. Default: 0.5
	StaleThreshold float64
}

// StoreChecker reports the response store as degraded when too many entries
// are waiting for a refetch, and unhealthy when it cannot be read.
type StoreChecker struct {
	src    StatsSource
	config StoreCheckerConfig
}

// NewStoreChecker creates a store checker.
func NewStoreChecker(src StatsSource, config StoreCheckerConfig) *StoreChecker {
	if config.StaleThreshold <= 0 || config.StaleThreshold > 1 {
		config.StaleThreshold = 0.5
	}
	return &StoreChecker{src: src, config: config}
}

// Name returns the name of this checker.
func (c *StoreChecker) Name() string { return "store" }

// Check performs the store health check.
func (c *StoreChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}
	if c.src == nil {
		return Unhealthy("no store", ErrNilSource)
	}

	st, err := c.src.Stats()
	if err != nil {
		return Unhealthy("store unavailable", err)
	}

	details := map[string]any{
		"entries":  st.Entries,
		"stale":    st.Stale,
		"domains":  st.Domains,
		"revision": st.Revision,
	}
	if st.Entries > 0 && ratio(st.Stale, st.Entries) >= c.config.StaleThreshold {
		return Degraded(fmt.Sprintf("%d of %d entries awaiting refetch", st.Stale, st.Entries)).WithDetails(details)
	}
	return Healthy("store ok").WithDetails(details)
}

// FailureSource reports how many keys were fetched and how many of them
// failed on their last call. *fetch.Coordinator implements it.
type FailureSource interface {
	FailureStats() (total, failed int, err error)
}

// FetchCheckerConfig configures a FetchChecker.
type FetchCheckerConfig struct {
	// DegradedThreshold is the share of failing keys that reports degraded.
	// Default: 0.25
	DegradedThreshold float64

	// UnhealthyThreshold is the share of failing keys that reports unhealthy.
	// Default: 0.75
	UnhealthyThreshold float64
}

// FetchChecker reports on the outcome of recent network calls.
type FetchChecker struct {
	src    FailureSource
	config FetchCheckerConfig
}

// NewFetchChecker creates a fetch checker.
func NewFetchChecker(src FailureSource, config FetchCheckerConfig) *FetchChecker {
	if config.DegradedThreshold <= 0 || config.DegradedThreshold > 1 {
		config.DegradedThreshold = 0.25
	}
	if config.UnhealthyThreshold <= 0 || config.UnhealthyThreshold > 1 {
		config.UnhealthyThreshold = 0.75
	}
	if config.UnhealthyThreshold < config.DegradedThreshold {
		config.UnhealthyThreshold = config.DegradedThreshold
	}
	return &FetchChecker{src: src, config: config}
}

// Name returns the name of this checker.
func (c *FetchChecker) Name() string { return "fetch" }

// Check performs the fetch health check.
func (c *FetchChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}
	if c.src == nil {
		return Unhealthy("no coordinator", ErrNilSource)
	}

	total, failed, err := c.src.FailureStats()
	if err != nil {
		return Unhealthy("coordinator unavailable", err)
	}

	details := map[string]any{"keys": total, "failed": failed}
	if total == 0 {
		return Healthy("no fetches yet").WithDetails(details)
	}

	r := ratio(failed, total)
	details["failure_ratio"] = r
	msg := fmt.Sprintf("%d of %d keys failing", failed, total)
	switch {
	case r >= c.config.UnhealthyThreshold:
		return Unhealthy(msg, nil).WithDetails(details)
	case r >= c.config.DegradedThreshold:
		return Degraded(msg).WithDetails(details)
	default:
		return Healthy(msg).WithDetails(details)
	}
}

// CircuitChecker reports the state of a circuit breaker: open is unhealthy,
// half-open is degraded.
type CircuitChecker struct {
	cb *resilience.CircuitBreaker
}

// NewCircuitChecker creates a circuit breaker checker.
func NewCircuitChecker(cb *resilience.CircuitBreaker) *CircuitChecker {
	return &CircuitChecker{cb: cb}
}

// Name returns the name of this checker.
func (c *CircuitChecker) Name() string { return "circuit" }

// Check performs the circuit breaker health check.
func (c *CircuitChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}
	if c.cb == nil {
		return Unhealthy("no circuit breaker", ErrNilSource)
	}

	m := c.cb.Metrics()
	details := map[string]any{
		"state":    m.State.String(),
		"failures": m.Failures,
	}
	if !m.LastFailure.IsZero() {
		details["last_failure"] = m.LastFailure
	}

	switch m.State {
	case resilience.StateOpen:
		return Unhealthy("circuit open", resilience.ErrCircuitOpen).WithDetails(details)
	case resilience.StateHalfOpen:
		return Degraded("circuit half-open").WithDetails(details)
	default:
		return Healthy("circuit closed").WithDetails(details)
	}
}

func ratio(n, total int) float64 {
	return float64(n) / float64(total)
}
