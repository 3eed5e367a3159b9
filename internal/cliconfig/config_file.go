package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	OutDir     string `toml:"outdir"`
	Name       string `toml:"name"`
	Device     string `toml:"device"`
	ChipConfig string `toml:"chip_config"`
	SimSeed    int    `toml:"sim_seed"`

	Runtime      string  `toml:"runtime"`
	ThresholdMV  float64 `toml:"threshold_mv"`
	AnalogColumn *int    `toml:"analog_column"`
	Inject       string  `toml:"inject"`
	InjectionMV  float64 `toml:"injection_mv"`

	ReadSize              int     `toml:"read_size"`
	MinPayloadBytes       int     `toml:"min_payload_bytes"`
	ConsecutiveNoHitReads int     `toml:"consecutive_no_hit_reads"`
	PollBackoff           string  `toml:"poll_backoff"`
	IdleFracCutoff        float64 `toml:"idle_frac_cutoff"`
	MinNonIdleCount       int     `toml:"min_non_idle_count"`
	MaxRemnantReads       int     `toml:"max_remnant_reads"`

	LogLevel      *int   `toml:"log_level"`
	SaveCSV       *bool  `toml:"csv"`
	Match         *bool  `toml:"match"`
	SQLitePath    string `toml:"sqlite"`
	MetricsListen string `toml:"metrics_listen"`

	Serial SerialFileConfig `toml:"serial"`
}

// SerialFileConfig is the [serial] table.
type SerialFileConfig struct {
	BaudRate     int    `toml:"baud_rate"`
	DataBits     int    `toml:"data_bits"`
	StopBits     int    `toml:"stop_bits"`
	Parity       string `toml:"parity"`
	IRQLine      string `toml:"irq_line"`
	IRQActiveLow *bool  `toml:"irq_active_low"`
	ReadTimeout  string `toml:"read_timeout"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.pixdaq/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".pixdaq", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("outdir", fc.OutDir, &cfg.OutDir)
	s.setString("name", fc.Name, &cfg.Name)
	s.setString("device", fc.Device, &cfg.Device)
	s.setString("yml", fc.ChipConfig, &cfg.ChipConfig)
	s.setString("inj", fc.Inject, &cfg.Inject)
	s.setString("sqlite", fc.SQLitePath, &cfg.SQLitePath)
	s.setString("metrics-listen", fc.MetricsListen, &cfg.MetricsListen)
	s.setString("serial-parity", fc.Serial.Parity, &cfg.Serial.Parity)
	s.setString("serial-irq", fc.Serial.IRQLine, &cfg.Serial.IRQLine)

	if err := s.setDuration("runtime", fc.Runtime, &cfg.Runtime); err != nil {
		return err
	}
	if err := s.setDuration("poll-backoff", fc.PollBackoff, &cfg.PollBackoff); err != nil {
		return err
	}
	if err := s.setDuration("serial-read-timeout", fc.Serial.ReadTimeout, &cfg.Serial.ReadTimeout); err != nil {
		return err
	}

	s.setFloat("thr", fc.ThresholdMV, &cfg.ThresholdMV)
	s.setFloat("injv", fc.InjectionMV, &cfg.InjectionMV)
	s.setFloat("idle-frac", fc.IdleFracCutoff, &cfg.IdleFracCutoff)

	s.setInt("sim-seed", fc.SimSeed, &cfg.SimSeed)
	s.setInt("read-size", fc.ReadSize, &cfg.ReadSize)
	s.setInt("min-payload", fc.MinPayloadBytes, &cfg.MinPayloadBytes)
	s.setInt("no-hit-reads", fc.ConsecutiveNoHitReads, &cfg.ConsecutiveNoHitReads)
	s.setInt("min-non-idle", fc.MinNonIdleCount, &cfg.MinNonIdleCount)
	s.setInt("max-remnant-reads", fc.MaxRemnantReads, &cfg.MaxRemnantReads)
	s.setInt("serial-baud", fc.Serial.BaudRate, &cfg.Serial.BaudRate)
	s.setInt("serial-data-bits", fc.Serial.DataBits, &cfg.Serial.DataBits)
	s.setInt("serial-stop-bits", fc.Serial.StopBits, &cfg.Serial.StopBits)
	s.setIntPtr("analog", fc.AnalogColumn, &cfg.AnalogColumn)
	s.setIntPtr("loglevel", fc.LogLevel, &cfg.LogLevel)

	s.setBool("csv", fc.SaveCSV, &cfg.SaveCSV)
	s.setBool("match", fc.Match, &cfg.Match)
	s.setBool("serial-irq-active-low", fc.Serial.IRQActiveLow, &cfg.Serial.IRQActiveLow)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
