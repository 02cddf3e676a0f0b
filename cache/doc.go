// Package cache holds the shared state of a data-fetching cache: the domain
// index, the response store and the controller that keeps both consistent.
//
// Cached responses are grouped under named domains. Invalidating a domain does
// not drop payloads; it flags every member entry for refetch so consumers can
// keep serving the stale payload while a fresh one is fetched.
//
// The controller is the only writer. Everything else reads through Entry,
// Domain and Snapshot, or subscribes to change events with Subscribe.
package cache
