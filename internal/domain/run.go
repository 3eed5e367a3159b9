package domain

import (
	"fmt"
	"time"
)

// Default acquisition parameters.
const (
	DefaultRunDuration           = 10 * time.Second
	DefaultReadSize              = 48
	DefaultMinPayloadBytes       = 40
	DefaultConsecutiveNoHitReads = 2
	DefaultPollBackoff           = 500 * time.Microsecond
	DefaultIdleFracCutoff        = 0.99
	DefaultMinNonIdleCount       = 20
)

// RunConfig holds the parameters of one acquisition run.
// It is fixed for the lifetime of the run.
type RunConfig struct {
	// Duration bounds the run. A negative value means run until cancelled.
	Duration time.Duration

	// ReadSize is the number of bytes requested per buffer read.
	ReadSize int

	// MinPayloadBytes is the minimum length a read must have to be persisted.
	MinPayloadBytes int

	// ConsecutiveNoHitReads is how many non-qualifying reads, together with
	// a cleared hit signal, end a drain.
	ConsecutiveNoHitReads int

	// PollBackoff is the sleep between polls.
	PollBackoff time.Duration

	// IdleFracCutoff and MinNonIdleCount parameterise the idle classifier.
	IdleFracCutoff  float64
	MinNonIdleCount int
}

// DefaultRunConfig returns a RunConfig with the standard parameters.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Duration:              DefaultRunDuration,
		ReadSize:              DefaultReadSize,
		MinPayloadBytes:       DefaultMinPayloadBytes,
		ConsecutiveNoHitReads: DefaultConsecutiveNoHitReads,
		PollBackoff:           DefaultPollBackoff,
		IdleFracCutoff:        DefaultIdleFracCutoff,
		MinNonIdleCount:       DefaultMinNonIdleCount,
	}
}

// Unbounded reports whether the run has no deadline.
func (c RunConfig) Unbounded() bool {
	return c.Duration < 0
}

// Validate checks the configuration for errors.
func (c RunConfig) Validate() error {
	if c.ReadSize <= 0 {
		return fmt.Errorf("%w: read size must be positive, got %d", ErrInvalidConfig, c.ReadSize)
	}
	if c.MinPayloadBytes < 0 {
		return fmt.Errorf("%w: min payload bytes must not be negative", ErrInvalidConfig)
	}
	if c.ConsecutiveNoHitReads < 1 {
		return fmt.Errorf("%w: consecutive no-hit reads must be at least 1", ErrInvalidConfig)
	}
	if c.PollBackoff < 0 {
		return fmt.Errorf("%w: poll backoff must not be negative", ErrInvalidConfig)
	}
	if c.IdleFracCutoff <= 0 || c.IdleFracCutoff > 1 {
		return fmt.Errorf("%w: idle fraction cutoff must be in (0, 1], got %g", ErrInvalidConfig, c.IdleFracCutoff)
	}
	if c.MinNonIdleCount < 0 {
		return fmt.Errorf("%w: min non-idle count must not be negative", ErrInvalidConfig)
	}
	return nil
}
