package secret

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.trai.ch/zerr"
)

const refPrefix = "secretref:"

// refPattern matches a reference anywhere in a value, e.g. the token in
// "Bearer secretref:env:API_TOKEN".
var refPattern = regexp.MustCompile(`secretref:([^:\s]+):(\S+)`)

// Resolver turns configured header and credential values into the strings
// sent to the origin. Environment variables are expanded first, then every
// secret reference is replaced by its provider's value.
type Resolver struct {
	providers map[string]Provider
	strict    bool
}

// NewResolver returns a Resolver backed by providers. When strict is set an
// empty provider value is reported as ErrEmptyValue.
func NewResolver(strict bool, providers ...Provider) *Resolver {
	r := &Resolver{providers: make(map[string]Provider, len(providers)), strict: strict}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register installs p under its name, replacing any earlier provider.
func (r *Resolver) Register(p Provider) {
	if r == nil || p == nil {
		return
	}
	if r.providers == nil {
		r.providers = make(map[string]Provider)
	}
	r.providers[p.Name()] = p
}

// ResolveValue expands and resolves one value. A nil Resolver leaves secret
// references untouched.
func (r *Resolver) ResolveValue(ctx context.Context, value string) (string, error) {
	expanded, err := ExpandEnvStrict(value)
	if err != nil || r == nil || !strings.Contains(expanded, refPrefix) {
		return expanded, err
	}

	var firstErr error
	out := refPattern.ReplaceAllStringFunc(expanded, func(m string) string {
		if firstErr != nil {
			return m
		}
		provider, ref, _ := ParseSecretRef(m)
		v, err := r.lookup(ctx, provider, ref)
		if err != nil {
			firstErr = err
		}
		return v
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// ResolveMap applies ResolveValue to every value of input.
func (r *Resolver) ResolveMap(ctx context.Context, input map[string]string) (map[string]string, error) {
	if input == nil {
		return nil, nil
	}
	out := make(map[string]string, len(input))
	for name, value := range input {
		v, err := r.ResolveValue(ctx, value)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// ParseSecretRef splits "secretref:<provider>:<ref>". ok is false for
// anything else, including a reference with an empty part.
func ParseSecretRef(value string) (provider, ref string, ok bool) {
	rest, ok := strings.CutPrefix(value, refPrefix)
	if !ok {
		return "", "", false
	}
	provider, ref, ok = strings.Cut(rest, ":")
	if !ok || provider == "" || ref == "" {
		return "", "", false
	}
	return provider, ref, true
}

func (r *Resolver) lookup(ctx context.Context, name, ref string) (string, error) {
	p, ok := r.providers[name]
	if !ok {
		return "", zerr.With(ErrUnknownProvider, "provider", name)
	}
	v, err := p.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	if v == "" && r.strict {
		return "", zerr.With(zerr.With(ErrEmptyValue, "provider", name), "ref", ref)
	}
	return v, nil
}
