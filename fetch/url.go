package fetch

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/jonwraymond/fetchcache/cache"
)

// resolveURL prefixes relative paths with baseURL and applies query options.
// Absolute http(s) paths are used as they are.
func resolveURL(baseURL, path string, query map[string]string) (string, error) {
	if err := cache.ValidateKey(path); err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrMisconfiguredKey, path, err)
	}

	raw := path
	if !isAbsolute(path) {
		raw = baseURL + path
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMisconfiguredKey, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not an absolute URL", ErrMisconfiguredKey, raw)
	}

	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func isAbsolute(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}
