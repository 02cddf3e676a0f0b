package cache

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Keyer derives deterministic cache keys from a request path and its
// call-specific options.
//
// Contract:
// - Determinism: same inputs must produce same key, regardless of map iteration order.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	Key(path string, options any) (string, error)
}

// DefaultKeyer keys requests by path and an xxhash of their options.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key generates a deterministic cache key.
// Format: <path> when options are empty, otherwise <path>#<hash>
// where hash is the 16 hex character xxhash64 of canonical JSON(options).
func (k *DefaultKeyer) Key(path string, options any) (string, error) {
	if err := ValidateKey(path); err != nil {
		return "", err
	}

	canonical, err := Canonicalize(options)
	if err != nil {
		return "", fmt.Errorf("cache: failed to canonicalize options: %w", err)
	}
	if isEmptyJSON(canonical) {
		return path, nil
	}

	return fmt.Sprintf("%s#%016x", path, xxhash.Sum64(canonical)), nil
}

func isEmptyJSON(b []byte) bool {
	switch string(b) {
	case "null", "{}", "[]", `""`:
		return true
	}
	return false
}

// Canonicalize produces a deterministic JSON representation of v. Structs
// are normalized through their JSON form first, so json tags and omitempty
// apply. Object keys are sorted at every depth.
func Canonicalize(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return canonicalize(generic)
}

func canonicalize(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		return canonicalizeMap(val)
	case []any:
		return canonicalizeSlice(val)
	default:
		return json.Marshal(v)
	}
}

func canonicalizeMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := []byte("{")
	for i, k := range keys {
		if i > 0 {
			result = append(result, ',')
		}

		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		result = append(result, keyBytes...)
		result = append(result, ':')

		valBytes, err := canonicalize(m[k])
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	return append(result, '}'), nil
}

func canonicalizeSlice(s []any) ([]byte, error) {
	result := []byte("[")
	for i, v := range s {
		if i > 0 {
			result = append(result, ',')
		}
		valBytes, err := canonicalize(v)
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	return append(result, ']'), nil
}

// Ensure DefaultKeyer implements Keyer
var _ Keyer = (*DefaultKeyer)(nil)
