package domain

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultRunConfig(t *testing.T) {
	cfg := DefaultRunConfig()

	if cfg.ReadSize != 48 {
		t.Errorf("ReadSize = %d, want 48", cfg.ReadSize)
	}
	if cfg.MinPayloadBytes != 40 {
		t.Errorf("MinPayloadBytes = %d, want 40", cfg.MinPayloadBytes)
	}
	if cfg.ConsecutiveNoHitReads != 2 {
		t.Errorf("ConsecutiveNoHitReads = %d, want 2", cfg.ConsecutiveNoHitReads)
	}
	if cfg.PollBackoff != 500*time.Microsecond {
		t.Errorf("PollBackoff = %v, want 500µs", cfg.PollBackoff)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestRunConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RunConfig)
		wantErr bool
	}{
		{"defaults", func(c *RunConfig) {}, false},
		{"unbounded duration", func(c *RunConfig) { c.Duration = -1 }, false},
		{"zero duration", func(c *RunConfig) { c.Duration = 0 }, false},
		{"zero read size", func(c *RunConfig) { c.ReadSize = 0 }, true},
		{"negative min payload", func(c *RunConfig) { c.MinPayloadBytes = -1 }, true},
		{"zero no-hit reads", func(c *RunConfig) { c.ConsecutiveNoHitReads = 0 }, true},
		{"negative backoff", func(c *RunConfig) { c.PollBackoff = -time.Millisecond }, true},
		{"cutoff zero", func(c *RunConfig) { c.IdleFracCutoff = 0 }, true},
		{"cutoff above one", func(c *RunConfig) { c.IdleFracCutoff = 1.01 }, true},
		{"cutoff one", func(c *RunConfig) { c.IdleFracCutoff = 1 }, false},
		{"negative min non-idle", func(c *RunConfig) { c.MinNonIdleCount = -3 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRunConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v should wrap ErrInvalidConfig", err)
			}
		})
	}
}

func TestRunStatus_Complete(t *testing.T) {
	tests := []struct {
		status RunStatus
		want   bool
	}{
		{RunStatus{Phase: PhaseAcquiring}, false},
		{RunStatus{Phase: PhaseDecoding, Acquired: true}, false},
		{RunStatus{Phase: PhaseDone, Acquired: true}, true},
		{RunStatus{Phase: PhaseFailed, Acquired: false}, false},
		{RunStatus{Phase: PhaseFailed, Acquired: true}, true},
	}

	for _, tt := range tests {
		if got := tt.status.Complete(); got != tt.want {
			t.Errorf("Complete(%+v) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
