package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jonwraymond/fetchcache/cache"
	"github.com/jonwraymond/fetchcache/resilience"
)

// Action performs the network call for a resolved URL. Query options have
// already been applied to url; opts carries the merged headers and
// credentials mode. The returned payload is stored as-is.
type Action func(ctx context.Context, url string, opts cache.RequestOptions) (any, error)

// maxBodySize bounds the payload HTTPAction reads.
const maxBodySize = 32 << 20

// HTTPAction returns an Action that issues GET requests with client.
// A nil client uses http.DefaultClient. Non-2xx responses fail with a
// *StatusError; 4xx failures are marked permanent so they are not retried.
// Successful bodies are returned as json.RawMessage.
func HTTPAction(client *http.Client) Action {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, url string, opts cache.RequestOptions) (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, resilience.Permanent(fmt.Errorf("%w: %w", ErrMisconfiguredKey, err))
		}
		req.Header.Set("Accept", "application/json")
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, fmt.Errorf("fetch: read body: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			serr := &StatusError{Code: resp.StatusCode, Status: resp.Status, URL: url}
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return nil, resilience.Permanent(serr)
			}
			return nil, serr
		}

		if len(body) == 0 {
			return json.RawMessage("null"), nil
		}
		return json.RawMessage(body), nil
	}
}
