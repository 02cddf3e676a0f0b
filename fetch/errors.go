package fetch

import (
	"errors"
	"fmt"

	"go.trai.ch/zerr"
)

// Sentinel errors for fetch operations.
var (
	// ErrNetworkFailure reports that the network action failed.
	ErrNetworkFailure = errors.New("fetch: network failure")

	// ErrMisconfiguredKey reports an empty or malformed request path. It is
	// surfaced like any other network failure.
	ErrMisconfiguredKey = fmt.Errorf("%w: misconfigured key", ErrNetworkFailure)

	// ErrDecode reports a payload that could not be decoded into the
	// observation's type.
	ErrDecode = errors.New("fetch: decode payload")

	ErrInvalidConfig = errors.New("fetch: invalid config")
)

// StatusError is returned by HTTPAction for non-2xx responses.
type StatusError struct {
	Code   int
	Status string
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: unexpected status %s from %s", e.Status, e.URL)
}

// networkError marks err as a network failure for key and attaches the key
// and URL as metadata.
func networkError(err error, key, url string) error {
	if !errors.Is(err, ErrNetworkFailure) {
		err = fmt.Errorf("%w: %w", ErrNetworkFailure, err)
	}
	return zerr.With(zerr.With(err, "key", key), "url", url)
}

// ErrorMetadata returns the metadata attached to a fetch error, or nil.
func ErrorMetadata(err error) map[string]any {
	var z *zerr.Error
	if errors.As(err, &z) {
		return z.Metadata()
	}
	return nil
}
