package resilience

import (
	"errors"
	"time"
)

// Config is the declarative form of an Executor.
type Config struct {
	Retry          RetryOptions   `yaml:"retry"`
	CircuitBreaker CircuitOptions `yaml:"circuit_breaker"`

	// MaxConcurrent enables a bulkhead when positive.
	MaxConcurrent int           `yaml:"max_concurrent"`
	MaxWait       time.Duration `yaml:"max_wait"`

	// Timeout bounds each attempt when positive.
	Timeout time.Duration `yaml:"timeout"`
}

// RetryOptions enables retries when MaxAttempts is greater than one.
type RetryOptions struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Backoff      string        `yaml:"backoff"` // exponential|linear|constant
	Jitter       bool          `yaml:"jitter"`
}

// CircuitOptions configures the circuit breaker.
type CircuitOptions struct {
	Enabled      bool          `yaml:"enabled"`
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// Validate validates the configuration.
func (c Config) Validate() error {
	switch c.Retry.Backoff {
	case "", "exponential", "linear", "constant":
	default:
		return errors.New("resilience: unknown backoff " + c.Retry.Backoff)
	}
	if c.MaxConcurrent < 0 || c.Retry.MaxAttempts < 0 || c.CircuitBreaker.MaxFailures < 0 {
		return errors.New("resilience: limits must not be negative")
	}
	if c.Timeout < 0 || c.MaxWait < 0 {
		return errors.New("resilience: durations must not be negative")
	}
	return nil
}

// FromConfig builds an Executor from cfg. Disabled patterns are left out.
func FromConfig(cfg Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []ExecutorOption
	if cfg.Retry.MaxAttempts > 1 {
		opts = append(opts, WithRetry(NewRetry(RetryConfig{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Strategy:     ParseBackoff(cfg.Retry.Backoff),
			Jitter:       cfg.Retry.Jitter,
		})))
	}
	if cfg.CircuitBreaker.Enabled {
		opts = append(opts, WithCircuitBreaker(NewCircuitBreaker(CircuitBreakerConfig{
			MaxFailures:  cfg.CircuitBreaker.MaxFailures,
			ResetTimeout: cfg.CircuitBreaker.ResetTimeout,
		})))
	}
	if cfg.MaxConcurrent > 0 {
		opts = append(opts, WithBulkhead(NewBulkhead(BulkheadConfig{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxWait:       cfg.MaxWait,
		})))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, WithTimeout(cfg.Timeout))
	}
	return NewExecutor(opts...), nil
}
