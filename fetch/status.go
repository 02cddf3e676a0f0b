package fetch

import "sync"

// Status is the transient fetch state of one key.
type Status int

const (
	StatusIdle Status = iota
	StatusFetching
	StatusSucceeded
	StatusFailed
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusFetching:
		return "fetching"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// KeyStatus is the fetch status of one key.
type KeyStatus struct {
	Status Status

	// Err is the error of the last call when Status is StatusFailed.
	Err error
}

// StatusListener receives fetch status changes for one key.
type StatusListener func(key string, status Status, err error)

// statusTable holds per-key fetch state and its watchers.
type statusTable struct {
	mu       sync.Mutex
	states   map[string]KeyStatus
	nextID   uint64
	watchers map[string]map[uint64]StatusListener
}

func newStatusTable() *statusTable {
	return &statusTable{
		states:   make(map[string]KeyStatus),
		watchers: make(map[string]map[uint64]StatusListener),
	}
}

func (t *statusTable) get(key string) KeyStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[key]
}

// set records the state and, when notify is true, calls the key's watchers
// after the lock is released.
func (t *statusTable) set(key string, status Status, err error, notify bool) {
	t.mu.Lock()
	t.states[key] = KeyStatus{Status: status, Err: err}
	var fns []StatusListener
	if notify {
		for _, fn := range t.watchers[key] {
			fns = append(fns, fn)
		}
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(key, status, err)
	}
}

func (t *statusTable) watch(key string, fn StatusListener) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	id := t.nextID
	if t.watchers[key] == nil {
		t.watchers[key] = make(map[uint64]StatusListener)
	}
	t.watchers[key][id] = fn

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.watchers[key], id)
		if len(t.watchers[key]) == 0 {
			delete(t.watchers, key)
		}
	}
}

// counts returns the number of keys with a recorded status and how many of
// them last failed.
func (t *statusTable) counts() (total, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.states {
		total++
		if s.Status == StatusFailed {
			failed++
		}
	}
	return total, failed
}
