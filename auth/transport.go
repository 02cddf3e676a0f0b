package auth

import (
	"fmt"
	"net/http"
)

// DefaultAPIKeyHeader is the header used for API keys when none is configured.
const DefaultAPIKeyHeader = "X-API-Key"

// Transport is an http.RoundTripper that adds credentials to each request.
// Headers already present on the request are left untouched, so
// call-specific credentials win over the transport's.
type Transport struct {
	// Base is the underlying transport. Default: http.DefaultTransport
	Base http.RoundTripper

	// Source supplies the bearer token for the Authorization header.
	Source TokenSource

	// APIKey is sent in APIKeyHeader when set.
	APIKey       string
	APIKeyHeader string
}

// RoundTrip implements http.RoundTripper. The caller's request is not modified.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Source == nil && t.APIKey == "" {
		return nil, ErrNoSource
	}

	out := req.Clone(req.Context())

	if t.Source != nil && out.Header.Get("Authorization") == "" {
		token, err := t.Source.Token(req.Context())
		if err != nil {
			return nil, fmt.Errorf("auth: obtain token: %w", err)
		}
		out.Header.Set("Authorization", "Bearer "+token)
	}

	if t.APIKey != "" {
		header := t.APIKeyHeader
		if header == "" {
			header = DefaultAPIKeyHeader
		}
		if out.Header.Get(header) == "" {
			out.Header.Set(header, t.APIKey)
		}
	}

	return t.base().RoundTrip(out)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// Client returns an http.Client that sends requests through t.
func (t *Transport) Client() *http.Client {
	return &http.Client{Transport: t}
}
