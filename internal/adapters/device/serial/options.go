package serial

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Options describes the serial link to the readout bridge.
type Options struct {
	BaudRate int    `toml:"baud_rate" yaml:"baud_rate"`
	DataBits int    `toml:"data_bits" yaml:"data_bits"`
	StopBits int    `toml:"stop_bits" yaml:"stop_bits"`
	Parity   string `toml:"parity" yaml:"parity"`

	// IRQLine names the modem status input carrying the hit signal:
	// "cts", "dsr", "dcd" or "ri".
	IRQLine string `toml:"irq_line" yaml:"irq_line"`

	// IRQActiveLow inverts the hit signal.
	IRQActiveLow bool `toml:"irq_active_low" yaml:"irq_active_low"`

	// ReadTimeout bounds a single buffer read.
	ReadTimeout time.Duration `toml:"-" yaml:"-"`
}

// Normalize validates the options and applies defaults for unset values.
func (o Options) Normalize() (Options, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 921600
	}
	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}
	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch p := strings.TrimSpace(strings.ToUpper(opts.Parity)); p {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}

	switch l := strings.ToLower(strings.TrimSpace(opts.IRQLine)); l {
	case "":
		opts.IRQLine = "cts"
	case "cts", "dsr", "dcd", "ri":
		opts.IRQLine = l
	default:
		return opts, fmt.Errorf("unsupported irq line %q: expected cts, dsr, dcd or ri", opts.IRQLine)
	}

	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 5 * time.Millisecond
	}
	return opts, nil
}

// Mode converts the options into the serial.Mode used to open the port.
func (o Options) Mode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}
