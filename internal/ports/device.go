package ports

import (
	"context"

	"github.com/bft-labs/pixdaq/internal/domain"
)

// DeviceSession is the polled interface to the detector front end.
// Calls are blocking and carry no internal timeout.
type DeviceSession interface {
	// HitsPresent reports whether the device signals pending readout data.
	HitsPresent(ctx context.Context) (bool, error)

	// ReadBuffer reads up to n bytes. An empty or nil result means no data.
	ReadBuffer(ctx context.Context, n int) ([]byte, error)

	// Close releases the session.
	Close() error
}

// Configurer is implemented by sessions that accept a chip configuration
// before acquisition starts.
type Configurer interface {
	Configure(ctx context.Context, cfg DeviceConfig) error
}

// Injector is implemented by sessions that can drive charge injection.
type Injector interface {
	StartInjection(ctx context.Context, cfg InjectionConfig) error
	StopInjection(ctx context.Context) error
}

// DeviceConfig is applied once per run, before any readout.
type DeviceConfig struct {
	// ThresholdMV is the comparator threshold in millivolts.
	ThresholdMV float64

	// AnalogColumn selects the column routed to the analog output.
	AnalogColumn int

	// Enabled lists the pixels left unmasked.
	Enabled []domain.Pixel

	// Injected lists the pixels with injection enabled.
	Injected []domain.Pixel

	// Chip carries the opaque chip register configuration.
	Chip map[string]any
}

// InjectionConfig holds injection pulse parameters.
type InjectionConfig struct {
	VoltageMV    float64 `yaml:"voltage_mv"`
	Period       int     `yaml:"period"`
	ClockDivider int     `yaml:"clkdiv"`
	InitDelay    int     `yaml:"initdelay"`
	PulsesPerSet int     `yaml:"pulses_per_set"`
	OnChip       bool    `yaml:"onchip"`
}

// DefaultInjectionConfig returns the standard injection settings at the
// given voltage.
func DefaultInjectionConfig(voltageMV float64) InjectionConfig {
	return InjectionConfig{
		VoltageMV:    voltageMV,
		Period:       162,
		ClockDivider: 300,
		InitDelay:    100,
		PulsesPerSet: 1,
		OnChip:       true,
	}
}
