package cache

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is fixed at construction and exposed read-only through
// Controller.Config.
type Config struct {
	// BaseURL is prepended to every relative request path.
	BaseURL string `yaml:"base_url"`

	// FetchOptions are merged into every outgoing request. Call-specific
	// options win on conflicting keys.
	FetchOptions RequestOptions `yaml:"fetch_options"`
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return nil
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: base_url: %v", ErrInvalidConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: base_url must be an absolute http(s) URL, got %q", ErrInvalidConfig, c.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: base_url has no host: %q", ErrInvalidConfig, c.BaseURL)
	}
	return nil
}

// Clone returns a copy of c that shares no maps with it.
func (c Config) Clone() Config {
	return Config{
		BaseURL:      c.BaseURL,
		FetchOptions: c.FetchOptions.Clone(),
	}
}

// ParseConfig decodes and validates a YAML cache configuration.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("cache: decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML cache configuration from path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cache: read config: %w", err)
	}
	return ParseConfig(data)
}
