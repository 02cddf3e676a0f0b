package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonwraymond/fetchcache/cache"
	"github.com/jonwraymond/fetchcache/resilience"
)

func TestHTTPAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		switch r.URL.Path {
		case "/users":
			if r.Header.Get("X-Tenant") != "acme" {
				t.Errorf("X-Tenant = %q", r.Header.Get("X-Tenant"))
			}
			_, _ = w.Write([]byte(`[{"id":1}]`))
		case "/empty":
			w.WriteHeader(http.StatusNoContent)
		case "/missing":
			http.NotFound(w, r)
		case "/throttled":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	action := HTTPAction(srv.Client())
	opts := cache.RequestOptions{Headers: map[string]string{"X-Tenant": "acme"}}
	ctx := context.Background()

	data, err := action(ctx, srv.URL+"/users", opts)
	if err != nil {
		t.Fatalf("action() error = %v", err)
	}
	if string(data.(json.RawMessage)) != `[{"id":1}]` {
		t.Errorf("data = %s", data)
	}

	data, err = action(ctx, srv.URL+"/empty", opts)
	if err != nil || string(data.(json.RawMessage)) != "null" {
		t.Errorf("empty body = %s, %v", data, err)
	}

	tests := []struct {
		path      string
		code      int
		permanent bool
	}{
		{"/missing", http.StatusNotFound, true},
		{"/throttled", http.StatusTooManyRequests, false},
		{"/broken", http.StatusBadGateway, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := action(ctx, srv.URL+tt.path, opts)
			var serr *StatusError
			if !errors.As(err, &serr) || serr.Code != tt.code {
				t.Fatalf("error = %v, want status %d", err, tt.code)
			}
			if resilience.IsPermanent(err) != tt.permanent {
				t.Errorf("IsPermanent = %v, want %v", resilience.IsPermanent(err), tt.permanent)
			}
		})
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		path    string
		query   map[string]string
		want    string
		wantErr bool
	}{
		{"relative", "https://api.example.com", "/users", nil, "https://api.example.com/users", false},
		{"absolute ignores base", "https://api.example.com", "https://other.example.com/x", nil, "https://other.example.com/x", false},
		{"query appended", "https://api.example.com", "/users?sort=name", map[string]string{"page": "2"}, "https://api.example.com/users?page=2&sort=name", false},
		{"empty", "https://api.example.com", "", nil, "", true},
		{"no base", "", "/users", nil, "", true},
		{"bad escape", "https://api.example.com", "/%zz", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveURL(tt.base, tt.path, tt.query)
			if tt.wantErr {
				if !errors.Is(err, ErrMisconfiguredKey) {
					t.Errorf("resolveURL() error = %v, want ErrMisconfiguredKey", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("resolveURL() = %q, %v, want %q", got, err, tt.want)
			}
		})
	}
}
