// Package observe provides observability primitives for cached fetches.
//
// It is a pure instrumentation library: no fetching and no transport, only
// exporter setup. The fetch coordinator wraps its network action with a
// Middleware, and the cache controller records invalidations on Metrics.
package observe
