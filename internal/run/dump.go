package run

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bft-labs/pixdaq/internal/domain"
	"github.com/bft-labs/pixdaq/internal/ports"
)

// ConfigDump is the effective configuration written next to a run.
type ConfigDump struct {
	RunID     string    `yaml:"run_id"`
	StartedAt time.Time `yaml:"started_at"`
	Device    string    `yaml:"device"`

	ThresholdMV  float64                `yaml:"threshold_mv"`
	AnalogColumn int                    `yaml:"analog_column"`
	Injection    *ports.InjectionConfig `yaml:"injection,omitempty"`
	InjectAt     string                 `yaml:"inject_at,omitempty"`

	Loop LoopDump `yaml:"loop"`

	EnabledPixels  int `yaml:"enabled_pixels"`
	InjectedPixels int `yaml:"injected_pixels"`

	Chip map[string]any `yaml:"chip,omitempty"`
}

// LoopDump mirrors domain.RunConfig with printable durations.
type LoopDump struct {
	Duration              string  `yaml:"duration"`
	ReadSize              int     `yaml:"read_size"`
	MinPayloadBytes       int     `yaml:"min_payload_bytes"`
	ConsecutiveNoHitReads int     `yaml:"consecutive_nohit_reads"`
	PollBackoff           string  `yaml:"poll_backoff"`
	IdleFracCutoff        float64 `yaml:"idle_frac_cutoff"`
	MinNonIdleCount       int     `yaml:"min_nonidle_count"`
}

func loopDump(c domain.RunConfig) LoopDump {
	d := c.Duration.String()
	if c.Unbounded() {
		d = "unbounded"
	}
	return LoopDump{
		Duration:              d,
		ReadSize:              c.ReadSize,
		MinPayloadBytes:       c.MinPayloadBytes,
		ConsecutiveNoHitReads: c.ConsecutiveNoHitReads,
		PollBackoff:           c.PollBackoff.String(),
		IdleFracCutoff:        c.IdleFracCutoff,
		MinNonIdleCount:       c.MinNonIdleCount,
	}
}

// WriteConfigDump writes d as YAML to path.
func WriteConfigDump(path string, d ConfigDump) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal config dump: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
