package fetch

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/fetchcache/cache"
	"github.com/jonwraymond/fetchcache/health"
	"github.com/jonwraymond/fetchcache/observe"
	"github.com/jonwraymond/fetchcache/resilience"
)

// DefaultServiceName is used for telemetry when none is configured.
const DefaultServiceName = "fetchcache"

// Config is the YAML document a Session is built from.
//
//	cache:
//	  base_url: https://api.example.com
//	  fetch_options:
//	    headers:
//	      X-Tenant: ${TENANT}
//	resilience:
//	  retry:
//	    max_attempts: 3
//	observe:
//	  service_name: web
//	auth:
//	  token: secretref:env:API_TOKEN
type Config struct {
	Cache      cache.Config      `yaml:"cache"`
	Resilience resilience.Config `yaml:"resilience"`
	Observe    observe.Config    `yaml:"observe"`
	Auth       AuthConfig        `yaml:"auth"`
	Secrets    SecretsConfig     `yaml:"secrets"`
	Health     HealthConfig      `yaml:"health"`
}

// AuthConfig configures the credentials attached to outgoing requests.
// String values may contain ${ENV} references and secretref: references.
type AuthConfig struct {
	// Token is sent as a bearer token.
	Token string `yaml:"token"`

	APIKey       string `yaml:"api_key"`
	APIKeyHeader string `yaml:"api_key_header"`

	// JWT mints short-lived bearer tokens instead of sending Token.
	JWT *JWTConfig `yaml:"jwt"`
}

// JWTConfig configures HS256 token minting.
type JWTConfig struct {
	Key      string        `yaml:"key"`
	KeyID    string        `yaml:"key_id"`
	Issuer   string        `yaml:"issuer"`
	Subject  string        `yaml:"subject"`
	Audience []string      `yaml:"audience"`
	TTL      time.Duration `yaml:"ttl"`
}

// SecretsConfig configures secret resolution.
type SecretsConfig struct {
	// Strict fails on secret references that resolve to empty values.
	Strict bool `yaml:"strict"`

	// Values backs the "static" secret provider.
	Values map[string]string `yaml:"values"`
}

// HealthConfig configures the session's health checks.
type HealthConfig struct {
	StaleThreshold     float64 `yaml:"stale_threshold"`
	DegradedThreshold  float64 `yaml:"degraded_threshold"`
	UnhealthyThreshold float64 `yaml:"unhealthy_threshold"`
}

func (c *Config) applyDefaults() {
	if c.Observe.ServiceName == "" {
		c.Observe.ServiceName = DefaultServiceName
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	c.applyDefaults()

	var errs []error
	if err := c.Cache.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Resilience.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Observe.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Auth.JWT != nil && c.Auth.JWT.Key == "" {
		errs = append(errs, fmt.Errorf("%w: auth.jwt.key is required", ErrInvalidConfig))
	}
	if c.Auth.JWT != nil && c.Auth.Token != "" {
		errs = append(errs, fmt.Errorf("%w: auth.token and auth.jwt are exclusive", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

// ParseConfig decodes and validates a YAML configuration.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("fetch: read config: %w", err)
	}
	return ParseConfig(data)
}

func (c HealthConfig) store() health.StoreCheckerConfig {
	return health.StoreCheckerConfig{StaleThreshold: c.StaleThreshold}
}

func (c HealthConfig) fetch() health.FetchCheckerConfig {
	return health.FetchCheckerConfig{
		DegradedThreshold:  c.DegradedThreshold,
		UnhealthyThreshold: c.UnhealthyThreshold,
	}
}
