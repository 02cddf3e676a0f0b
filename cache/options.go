package cache

import "maps"

// RequestOptions are the transport options of a cached GET request.
type RequestOptions struct {
	// Headers are sent with the request. Keys are matched exactly.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// Query parameters are appended to the request URL.
	Query map[string]string `yaml:"query,omitempty" json:"query,omitempty"`

	// Credentials is a browser-style credentials mode ("omit", "same-origin",
	// "include"). Network actions may ignore it.
	Credentials string `yaml:"credentials,omitempty" json:"credentials,omitempty"`
}

// IsZero reports whether o carries no options.
func (o RequestOptions) IsZero() bool {
	return len(o.Headers) == 0 && len(o.Query) == 0 && o.Credentials == ""
}

// Clone returns a deep copy of o.
func (o RequestOptions) Clone() RequestOptions {
	return RequestOptions{
		Headers:     maps.Clone(o.Headers),
		Query:       maps.Clone(o.Query),
		Credentials: o.Credentials,
	}
}

// Merge overlays override on base. Values from override win on conflicting
// header and query keys, and a non-empty override Credentials replaces the
// base value. Neither argument is modified.
func Merge(base, override RequestOptions) RequestOptions {
	out := base.Clone()
	out.Headers = mergeMap(out.Headers, override.Headers)
	out.Query = mergeMap(out.Query, override.Query)
	if override.Credentials != "" {
		out.Credentials = override.Credentials
	}
	return out
}

func mergeMap(dst, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	maps.Copy(dst, src)
	return dst
}
