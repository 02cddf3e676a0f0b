// Package fetch coordinates network fetches for the response cache.
//
// A Coordinator decides, per cache key, whether a request must go to the
// network: when the key has no entry, when its entry was flagged for refetch
// by a domain invalidation, or when the caller forces it. Concurrent requests
// for the same key share one in-flight call. Successful payloads are written
// through the cache.Controller; failures are reported to the caller and never
// stored.
//
// Observe is the consumer-facing side. An Observation tracks one key, fetches
// it on creation, re-fetches whenever the controller flags it, and reports
// the current {fetching, data, error} triple through State.
//
// Session wires the whole stack from a single YAML Config.
package fetch
