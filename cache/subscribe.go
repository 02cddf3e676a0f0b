package cache

import "sync"

// EventKind identifies the mutation that produced an Event.
type EventKind int

const (
	// EventAdded is delivered after a response was stored for the key.
	EventAdded EventKind = iota
	// EventInvalidated is delivered after the key's entry was flagged for refetch.
	EventInvalidated
)

// String returns the string representation of the kind.
func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// Event describes a change to one entry.
type Event struct {
	Kind EventKind
	Key  string

	// Entry is the entry as stored by the mutation.
	Entry Entry

	// Domain is set for events delivered to domain subscribers.
	Domain string
}

// Listener receives events. Listeners run on the goroutine that applied the
// mutation, after the controller lock is released, so they may read from the
// controller and request further mutations.
type Listener func(Event)

// Subscription is a registered listener. Close unregisters it.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Close unregisters the listener. Safe to call more than once.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// registry holds listeners per key and per domain.
type registry struct {
	mu       sync.Mutex
	nextID   uint64
	byKey    map[string]map[uint64]Listener
	byDomain map[string]map[uint64]Listener
}

func newRegistry() *registry {
	return &registry{
		byKey:    make(map[string]map[uint64]Listener),
		byDomain: make(map[string]map[uint64]Listener),
	}
}

func (r *registry) add(set map[string]map[uint64]Listener, name string, fn Listener) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	if set[name] == nil {
		set[name] = make(map[uint64]Listener)
	}
	set[name][id] = fn

	return &Subscription{cancel: func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(set[name], id)
		if len(set[name]) == 0 {
			delete(set, name)
		}
	}}
}

// delivery is a listener bound to the event it will receive.
type delivery struct {
	fn    Listener
	event Event
}

func (r *registry) collect(set map[string]map[uint64]Listener, name string, ev Event, out []delivery) []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, fn := range set[name] {
		out = append(out, delivery{fn: fn, event: ev})
	}
	return out
}

func dispatch(deliveries []delivery) {
	for _, d := range deliveries {
		d.fn(d.event)
	}
}
