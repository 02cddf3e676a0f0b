package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jonwraymond/fetchcache/cache"
	"github.com/jonwraymond/fetchcache/fetch"
	"github.com/jonwraymond/fetchcache/health"
	"github.com/jonwraymond/fetchcache/observe"
)

// maxClearBody bounds the body of a clear request.
const maxClearBody = 1 << 20

type server struct {
	ctrl   *cache.Controller
	co     *fetch.Coordinator
	health *health.Aggregator
	logger observe.Logger
}

// Option configures the router.
type Option func(*server)

// WithCoordinator adds the fetch status of each key to entry responses.
func WithCoordinator(co *fetch.Coordinator) Option {
	return func(s *server) { s.co = co }
}

// WithHealth mounts the health endpoints for agg.
func WithHealth(agg *health.Aggregator) Option {
	return func(s *server) { s.health = agg }
}

// WithLogger logs invalidations requested over HTTP.
func WithLogger(l observe.Logger) Option {
	return func(s *server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewRouter returns the admin HTTP handler for ctrl.
func NewRouter(ctrl *cache.Controller, opts ...Option) (http.Handler, error) {
	if _, err := ctrl.Config(); err != nil {
		return nil, err
	}
	s := &server{ctrl: ctrl, logger: observe.NopLogger()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/entries", func(r chi.Router) {
		r.Get("/", s.listEntries)
		r.Get("/{key}", s.getEntry)
	})
	r.Route("/domains", func(r chi.Router) {
		r.Get("/", s.listDomains)
		r.Post("/clear", s.clearDomains)
		r.Get("/{domain}", s.getDomain)
	})
	if s.health != nil {
		health.Mount(r, s.health)
	}
	return r, nil
}

// EntryResponse is the JSON form of one cache entry.
type EntryResponse struct {
	Key              string          `json:"key"`
	RefetchRequested bool            `json:"refetch_requested"`
	Status           string          `json:"status,omitempty"`
	Error            string          `json:"error,omitempty"`
	Data             json.RawMessage `json:"data,omitempty"`
}

// DomainResponse is the JSON form of one domain.
type DomainResponse struct {
	Domain string   `json:"domain"`
	Keys   []string `json:"keys"`
}

// ClearRequest is the body of POST /domains/clear.
type ClearRequest struct {
	Domains []string `json:"domains"`
}

func (s *server) entry(key string, e cache.Entry, withData bool) EntryResponse {
	out := EntryResponse{Key: key, RefetchRequested: e.RefetchRequested}
	if s.co != nil {
		if ks, err := s.co.Status(key); err == nil {
			out.Status = ks.Status.String()
			if ks.Err != nil {
				out.Error = ks.Err.Error()
			}
		}
	}
	if withData {
		out.Data = payload(e.Data)
	}
	return out
}

// payload renders stored data as JSON. Raw JSON is passed through.
func payload(v any) json.RawMessage {
	switch x := v.(type) {
	case nil:
		return nil
	case json.RawMessage:
		return x
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func (s *server) listEntries(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ctrl.Snapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	staleOnly := r.URL.Query().Get("stale") == "true"

	keys := make([]string, 0, len(snap.Responses))
	for key, e := range snap.Responses {
		if staleOnly && !e.RefetchRequested {
			continue
		}
		keys = append(keys, key)
	}
	slices.Sort(keys)

	out := make([]EntryResponse, 0, len(keys))
	for _, key := range keys {
		out = append(out, s.entry(key, snap.Responses[key], false))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) getEntry(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	e, ok, err := s.ctrl.Entry(key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("entry not found"))
		return
	}
	writeJSON(w, http.StatusOK, s.entry(key, e, true))
}

func (s *server) listDomains(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ctrl.Snapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	names := make([]string, 0, len(snap.Domains))
	for name := range snap.Domains {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]DomainResponse, 0, len(names))
	for _, name := range names {
		out = append(out, DomainResponse{Domain: name, Keys: snap.Domains[name]})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) getDomain(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "domain")
	keys, err := s.ctrl.Domain(name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, DomainResponse{Domain: name, Keys: keys})
}

func (s *server) clearDomains(w http.ResponseWriter, r *http.Request) {
	var req ClearRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxClearBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Domains) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("domains is required"))
		return
	}

	if err := s.ctrl.ClearDomains(r.Context(), req.Domains...); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info(r.Context(), "domains cleared over http",
		observe.Field{Key: "cache.domains", Value: req.Domains},
		observe.Field{Key: "http.remote_addr", Value: r.RemoteAddr},
	)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
