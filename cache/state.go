package cache

import "slices"

// Entry is a cached response.
type Entry struct {
	// Data is the opaque payload of the last successful response.
	Data any

	// RefetchRequested marks Data as stale. It is set when a domain containing
	// the entry's key is cleared and reset when a fresh response is added.
	RefetchRequested bool
}

// DomainIndex maps a domain name to the keys that were added under it.
type DomainIndex map[string][]string

// ResponseStore maps a cache key to its entry.
type ResponseStore map[string]Entry

// State is the domain index and response store taken together.
type State struct {
	Domains   DomainIndex
	Responses ResponseStore
}

// Response is a successful result to be recorded for a key.
type Response struct {
	Key     string
	Domains []string
	Data    any

	// Revision is the controller revision observed when the request producing
	// this response was issued. Zero means the response is not tied to an
	// issuance point and always lands as fresh.
	Revision uint64
}

// NewState returns an empty state.
func NewState() State {
	return State{
		Domains:   make(DomainIndex),
		Responses: make(ResponseStore),
	}
}

// Clone returns a copy of s that shares no maps or slices with it.
func (s State) Clone() State {
	out := State{
		Domains:   make(DomainIndex, len(s.Domains)),
		Responses: make(ResponseStore, len(s.Responses)),
	}
	for name, keys := range s.Domains {
		out.Domains[name] = slices.Clone(keys)
	}
	for key, entry := range s.Responses {
		out.Responses[key] = entry
	}
	return out
}

// AddResponse returns a new state in which r.Key belongs to every domain in
// r.Domains and the response store holds r.Data as a fresh entry. s is not
// modified.
func AddResponse(s State, r Response) State {
	next := s.Clone()
	next.addResponse(r, false)
	return next
}

// ClearDomains returns a new state in which every existing entry whose key
// belongs to one of the named domains has RefetchRequested set, plus the
// affected keys. Unknown domains are ignored and no entry is created. s is
// not modified.
func ClearDomains(s State, domains []string) (State, []string) {
	next := s.Clone()
	keys := next.clearDomains(domains)
	return next, keys
}

// addResponse applies r in place. stale stores the entry with
// RefetchRequested already set.
func (s State) addResponse(r Response, stale bool) {
	for _, name := range r.Domains {
		keys := s.Domains[name]
		if slices.Contains(keys, r.Key) {
			continue
		}
		s.Domains[name] = append(keys, r.Key)
	}
	s.Responses[r.Key] = Entry{Data: r.Data, RefetchRequested: stale}
}

// clearDomains applies an invalidation in place and returns the keys whose
// entries were flagged, in first-seen order.
func (s State) clearDomains(domains []string) []string {
	seen := make(map[string]struct{})
	var affected []string
	for _, name := range domains {
		for _, key := range s.Domains[name] {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			entry, ok := s.Responses[key]
			if !ok {
				continue
			}
			entry.RefetchRequested = true
			s.Responses[key] = entry
			affected = append(affected, key)
		}
	}
	return affected
}
