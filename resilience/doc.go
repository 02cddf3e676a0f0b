// Package resilience guards the network action of the fetch coordinator.
//
// The cache itself imposes no timeout and never retries; those concerns
// belong to the network action. This package provides them as composable
// wrappers around func(context.Context) error:
//
//   - Retry re-runs a failed fetch with exponential, linear or constant backoff.
//     Errors marked with Permanent (such as 4xx responses) are not retried.
//   - CircuitBreaker stops calling an origin that keeps failing.
//   - Bulkhead caps the number of fetches in flight across all keys.
//   - Timeout bounds a single attempt.
//
// Executor composes them in a fixed order:
//
//	exec := resilience.NewExecutor(
//	    resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: 8})),
//	    resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})),
//	    resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{MaxAttempts: 3})),
//	    resilience.WithTimeout(10*time.Second),
//	)
//
// FromConfig builds the same executor from a YAML-friendly Config.
package resilience
