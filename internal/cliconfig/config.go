package cliconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/pixdaq/internal/adapters/device/serial"
	"github.com/bft-labs/pixdaq/internal/domain"
	"github.com/bft-labs/pixdaq/internal/pixel"
)

// Default values for run settings not covered by domain.RunConfig.
const (
	DefaultOutDir        = "data"
	DefaultDevice        = "sim"
	DefaultThresholdMV   = 150.0
	DefaultInjectionMV   = 300.0
	DefaultLogLevel      = 20
	DefaultChipConfigTag = "testconfig_v3"
)

// Config holds CLI configuration for pixdaq.
type Config struct {
	OutDir string
	Name   string

	// Device selects the session: "sim", "replay:<file.dat>",
	// "serial:<port>" or a bare serial port path.
	Device string
	Serial serial.Options
	SimSeed int

	Runtime      time.Duration
	ThresholdMV  float64
	AnalogColumn int
	ChipConfig   string

	// Inject is "col,row"; a negative coordinate scans that axis.
	Inject      string
	InjectionMV float64

	ReadSize              int
	MinPayloadBytes       int
	ConsecutiveNoHitReads int
	PollBackoff           time.Duration
	IdleFracCutoff        float64
	MinNonIdleCount       int
	MaxRemnantReads       int

	LogLevel      int
	SaveCSV       bool
	Match         bool
	SQLitePath    string
	MetricsListen string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	rc := domain.DefaultRunConfig()
	return Config{
		OutDir:                DefaultOutDir,
		Device:                DefaultDevice,
		SimSeed:               1,
		Runtime:               rc.Duration,
		ThresholdMV:           DefaultThresholdMV,
		InjectionMV:           DefaultInjectionMV,
		ReadSize:              rc.ReadSize,
		MinPayloadBytes:       rc.MinPayloadBytes,
		ConsecutiveNoHitReads: rc.ConsecutiveNoHitReads,
		PollBackoff:           rc.PollBackoff,
		IdleFracCutoff:        rc.IdleFracCutoff,
		MinNonIdleCount:       rc.MinNonIdleCount,
		MaxRemnantReads:       1000,
		ChipConfig:            DefaultChipConfigTag,
		LogLevel:              DefaultLogLevel,
	}
}

// Validate checks the configuration for errors and normalises values.
func (c *Config) Validate() error {
	if c.OutDir == "" {
		return fmt.Errorf("%w: outdir is required", domain.ErrInvalidConfig)
	}
	c.Device = strings.TrimSpace(c.Device)
	if c.Device == "" {
		c.Device = DefaultDevice
	}
	if strings.ContainsAny(c.Name, `/\`) {
		return fmt.Errorf("%w: name %q must not contain path separators", domain.ErrInvalidConfig, c.Name)
	}
	if c.ThresholdMV <= 0 {
		return fmt.Errorf("%w: threshold must be positive", domain.ErrInvalidConfig)
	}
	if c.AnalogColumn < 0 || c.AnalogColumn >= pixel.Size {
		return fmt.Errorf("%w: analog column %d outside 0..%d", domain.ErrInvalidConfig, c.AnalogColumn, pixel.Size-1)
	}
	if _, err := c.InjectionTarget(); err != nil {
		return err
	}
	if c.Inject != "" && c.InjectionMV <= 0 {
		return fmt.Errorf("%w: injection voltage must be positive", domain.ErrInvalidConfig)
	}
	if c.LogLevel < -1 {
		return fmt.Errorf("%w: log level %d below -1", domain.ErrInvalidConfig, c.LogLevel)
	}
	if _, err := c.Serial.Normalize(); err != nil {
		return fmt.Errorf("%w: serial: %v", domain.ErrInvalidConfig, err)
	}
	return c.RunConfig().Validate()
}

// RunConfig converts the loop settings.
func (c *Config) RunConfig() domain.RunConfig {
	return domain.RunConfig{
		Duration:              c.Runtime,
		ReadSize:              c.ReadSize,
		MinPayloadBytes:       c.MinPayloadBytes,
		ConsecutiveNoHitReads: c.ConsecutiveNoHitReads,
		PollBackoff:           c.PollBackoff,
		IdleFracCutoff:        c.IdleFracCutoff,
		MinNonIdleCount:       c.MinNonIdleCount,
	}
}

// InjectionTarget parses Inject. It returns nil when injection is off.
func (c *Config) InjectionTarget() (*pixel.Target, error) {
	if strings.TrimSpace(c.Inject) == "" {
		return nil, nil
	}
	colStr, rowStr, ok := strings.Cut(c.Inject, ",")
	if !ok {
		return nil, fmt.Errorf("%w: inject %q: want col,row", domain.ErrInvalidConfig, c.Inject)
	}
	col, err := strconv.Atoi(strings.TrimSpace(colStr))
	if err != nil {
		return nil, fmt.Errorf("%w: inject column: %v", domain.ErrInvalidConfig, err)
	}
	row, err := strconv.Atoi(strings.TrimSpace(rowStr))
	if err != nil {
		return nil, fmt.Errorf("%w: inject row: %v", domain.ErrInvalidConfig, err)
	}
	if col >= pixel.Size || row >= pixel.Size {
		return nil, fmt.Errorf("%w: inject %d,%d outside matrix", domain.ErrInvalidConfig, col, row)
	}
	return &pixel.Target{Col: col, Row: row}, nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if non-zero and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value == 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setFloat sets a float64 value if positive and flag not changed.
func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntPtr sets an int from a pointer, so that zero can be configured.
func (s *configSetter) setIntPtr(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = i
	return nil
}

// setFloatFromString parses a string to float64 and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if f <= 0 {
		return nil
	}
	*dst = f
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
