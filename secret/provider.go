package secret

import (
	"context"
	"os"

	"go.trai.ch/zerr"
)

// Provider looks up one kind of secret reference. Implementations must be
// safe for concurrent use and must never log the values they return.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
}

// EnvProvider serves "secretref:env:<VAR>" from the process environment.
type EnvProvider struct{}

func (EnvProvider) Name() string { return "env" }

func (EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	if v, ok := os.LookupEnv(ref); ok {
		return v, nil
	}
	return "", zerr.With(ErrNotFound, "env", ref)
}

// MapProvider serves references from a fixed table, typically the secrets
// block of a session config.
type MapProvider struct {
	ProviderName string
	Values       map[string]string
}

func (p MapProvider) Name() string { return p.ProviderName }

func (p MapProvider) Resolve(_ context.Context, ref string) (string, error) {
	if v, ok := p.Values[ref]; ok {
		return v, nil
	}
	return "", zerr.With(zerr.With(ErrNotFound, "provider", p.ProviderName), "ref", ref)
}
