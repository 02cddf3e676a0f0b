package resilience

import (
	"context"
	"errors"
	"time"
)

const defaultAttemptTimeout = 30 * time.Second

// TimeoutConfig configures Timeout.
type TimeoutConfig struct {
	// Timeout bounds one origin attempt. Default: 30s
	Timeout time.Duration
}

// Timeout bounds a single fetch attempt.
type Timeout struct {
	config TimeoutConfig
}

func NewTimeout(config TimeoutConfig) *Timeout {
	if config.Timeout <= 0 {
		config.Timeout = defaultAttemptTimeout
	}
	return &Timeout{config: config}
}

// Execute runs op under a deadline whose cause is ErrTimeout. When the
// deadline passes, Execute returns without waiting for an op that ignores
// its context. Cancellation of the parent is reported as the parent's error.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeoutCause(ctx, t.config.Timeout, ErrTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- op(ctx) }()

	var err error
	select {
	case err = <-done:
		if err == nil || !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	case <-ctx.Done():
		err = ctx.Err()
	}
	if errors.Is(context.Cause(ctx), ErrTimeout) {
		return ErrTimeout
	}
	return err
}

func (t *Timeout) Config() TimeoutConfig { return t.config }
