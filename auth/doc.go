// Package auth attaches credentials to the cache's outgoing requests.
//
// A TokenSource produces bearer tokens: StaticToken for fixed tokens and
// JWTSource for short-lived HS256 tokens minted on demand. Transport is an
// http.RoundTripper that sets the Authorization header (and optionally an
// API key header) on every request the network action sends.
package auth
