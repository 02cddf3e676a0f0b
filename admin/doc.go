// Package admin exposes a response cache over HTTP for operators.
//
// Routes:
//
//	GET  /entries               every cached entry (?stale=true for flagged ones)
//	GET  /entries/{key}         one entry; the key is path-escaped
//	GET  /domains               every domain and its keys
//	GET  /domains/{domain}      the keys of one domain
//	POST /domains/clear         {"domains": [...]} flags the domains for refetch
//	GET  /healthz, /readyz, /health
package admin
