package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jonwraymond/fetchcache/cache"
)

// State is what an observer sees for one key.
type State[T any] struct {
	// Fetching is true while a network call for the key is in flight.
	Fetching bool

	// Data is the cached payload decoded into T. It keeps the last good
	// value while a refetch is in flight or after a failed one.
	Data    T
	HasData bool

	// Err is the error of the last failed call, or a decode error.
	Err error
}

// ObserveOptions configure an observation.
type ObserveOptions struct {
	// Domains the response is filed under.
	Domains []string

	// Options are call-specific request options.
	Options cache.RequestOptions

	// OnChange is called whenever the observed state may have changed. It
	// runs on the goroutine that made the change and should not block.
	OnChange func()
}

// Observation tracks one key. It fetches the key when created and again
// whenever the controller flags its entry for refetch.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Lifecycle: Close releases the subscriptions. Fetches already issued
//     still complete and are stored.
type Observation[T any] struct {
	co       *Coordinator
	req      Request
	key      string
	onChange func()

	sub     *cache.Subscription
	unwatch func()

	mu     sync.Mutex
	closed bool
	err    error

	wg sync.WaitGroup
}

// Observe starts observing path. It returns an error only when co is not
// initialized; a malformed path is reported through State().Err.
func Observe[T any](co *Coordinator, path string, opts ObserveOptions) (*Observation[T], error) {
	if err := co.ready(); err != nil {
		return nil, err
	}

	o := &Observation[T]{
		co:       co,
		req:      Request{Path: path, Domains: opts.Domains, Options: opts.Options},
		onChange: opts.OnChange,
	}

	key, err := co.Key(o.req)
	if err != nil {
		o.err = err
		o.notify()
		return o, nil
	}
	o.key = key
	o.req.Key = key

	o.sub, err = co.ctrl.Subscribe(key, o.onEvent)
	if err != nil {
		return nil, err
	}
	o.unwatch, err = co.Watch(key, func(string, Status, error) { o.notify() })
	if err != nil {
		o.sub.Close()
		return nil, err
	}

	o.trigger(false)
	return o, nil
}

// Key returns the observed cache key, or "" when the path was malformed.
func (o *Observation[T]) Key() string { return o.key }

// State returns the current state of the observed key.
func (o *Observation[T]) State() State[T] {
	o.mu.Lock()
	localErr := o.err
	o.mu.Unlock()

	var st State[T]
	if o.key == "" {
		st.Err = localErr
		return st
	}

	if ks, err := o.co.Status(o.key); err == nil {
		st.Fetching = ks.Status == StatusFetching
		switch ks.Status {
		case StatusFailed:
			st.Err = ks.Err
		case StatusIdle:
			st.Err = localErr
		}
	}

	entry, ok, err := o.co.ctrl.Entry(o.key)
	if err != nil {
		st.Err = err
		return st
	}
	if ok {
		data, err := decode[T](entry.Data)
		if err != nil {
			st.Err = err
		} else {
			st.Data, st.HasData = data, true
		}
	}
	return st
}

// Refetch issues a network call for the key regardless of its refetch flag.
// It returns immediately; the outcome is delivered through OnChange.
func (o *Observation[T]) Refetch() {
	o.trigger(true)
}

// Close stops the observation. Safe to call more than once.
func (o *Observation[T]) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.sub.Close()
	if o.unwatch != nil {
		o.unwatch()
	}
}

func (o *Observation[T]) onEvent(ev cache.Event) {
	if ev.Entry.RefetchRequested {
		o.trigger(false)
	} else if ev.Kind == cache.EventAdded {
		// A fresh payload supersedes this observation's last failure, whoever
		// fetched it.
		o.mu.Lock()
		o.err = nil
		o.mu.Unlock()
	}
	o.notify()
}

func (o *Observation[T]) trigger(force bool) {
	o.mu.Lock()
	if o.closed || o.key == "" {
		o.mu.Unlock()
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()

	req := o.req
	req.Force = force
	go func() {
		defer o.wg.Done()
		for {
			_, err := o.co.Fetch(context.Background(), req)

			o.mu.Lock()
			o.err = err
			o.mu.Unlock()
			if err != nil {
				o.notify()
				return
			}
			// A result shared with a call that was issued before the latest
			// invalidation is stored flagged; fetch again.
			if !o.stale() {
				return
			}
			req.Force = false
		}
	}()
}

func (o *Observation[T]) stale() bool {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return false
	}
	entry, ok, err := o.co.ctrl.Entry(o.key)
	return err == nil && ok && entry.RefetchRequested
}

func (o *Observation[T]) notify() {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if !closed && o.onChange != nil {
		o.onChange()
	}
}

// decode converts a stored payload into T. Raw JSON is unmarshaled, values
// already of type T pass through, anything else goes through a JSON round trip.
func decode[T any](v any) (T, error) {
	var out T
	if v == nil {
		return out, nil
	}
	if t, ok := v.(T); ok {
		return t, nil
	}

	var raw []byte
	switch x := v.(type) {
	case json.RawMessage:
		raw = x
	case []byte:
		raw = x
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return out, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		raw = b
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return out, nil
}
