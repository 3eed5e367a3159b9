// Package serial implements a device session over a serial readout bridge.
//
// The bridge forwards the front end's byte stream on the data line and
// mirrors its interrupt output on a modem status input. Configuration and
// injection are newline terminated text commands. DTR gates injection.
package serial

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/bft-labs/pixdaq/internal/domain"
	"github.com/bft-labs/pixdaq/internal/pixel"
	"github.com/bft-labs/pixdaq/internal/ports"
)

// Port is the part of serial.Port the session uses.
type Port interface {
	io.ReadWriteCloser
	GetModemStatusBits() (*serial.ModemStatusBits, error)
	SetDTR(dtr bool) error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Session talks to the bridge over a Port.
type Session struct {
	mu     sync.Mutex
	port   Port
	opts   Options
	logger ports.Logger
}

// Open opens the serial device at path.
func Open(path string, opts Options, logger ports.Logger) (*Session, error) {
	mode, err := opts.Mode()
	if err != nil {
		return nil, err
	}
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	s, err := NewSession(p, opts, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	logger.Info("serial session opened", ports.String("port", path), ports.Int("baud", mode.BaudRate))
	return s, nil
}

// NewSession wraps an already open port.
func NewSession(p Port, opts Options, logger ports.Logger) (*Session, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(opts.ReadTimeout); err != nil {
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return &Session{port: p, opts: opts, logger: logger}, nil
}

// HitsPresent reads the interrupt line.
func (s *Session) HitsPresent(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bits, err := s.port.GetModemStatusBits()
	if err != nil {
		return false, fmt.Errorf("modem status: %w", err)
	}
	var asserted bool
	switch s.opts.IRQLine {
	case "dsr":
		asserted = bits.DSR
	case "dcd":
		asserted = bits.DCD
	case "ri":
		asserted = bits.RI
	default:
		asserted = bits.CTS
	}
	return asserted != s.opts.IRQActiveLow, nil
}

// ReadBuffer reads up to n bytes, returning what arrived before the read
// timeout.
func (s *Session) ReadBuffer(ctx context.Context, n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, n)
	got := 0
	for got < n {
		k, err := s.port.Read(buf[got:])
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		if k == 0 {
			break
		}
		got += k
	}
	return buf[:got], nil
}

// Configure applies a run configuration. The input buffer is cleared
// afterwards so stale bytes do not reach the first read.
func (s *Session) Configure(ctx context.Context, cfg ports.DeviceConfig) error {
	cmds := []string{
		"mask clear",
		fmt.Sprintf("thr %.1f", cfg.ThresholdMV),
		fmt.Sprintf("analog %d", cfg.AnalogColumn),
	}
	cmds = append(cmds, columnMaskCommands("en", cfg.Enabled)...)
	cmds = append(cmds, columnMaskCommands("inj", cfg.Injected)...)
	cmds = append(cmds, registerCommands(cfg.Chip)...)
	cmds = append(cmds, "apply")

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cmds {
		if err := s.sendLocked(c); err != nil {
			return err
		}
	}
	if err := s.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("reset input: %w", err)
	}
	s.logger.Debug("device configured", ports.Int("commands", len(cmds)))
	return nil
}

// StartInjection programs and enables injection pulses.
func (s *Session) StartInjection(ctx context.Context, cfg ports.InjectionConfig) error {
	onChip := 0
	if cfg.OnChip {
		onChip = 1
	}
	cmd := fmt.Sprintf("inj set v=%.1f period=%d clkdiv=%d initdelay=%d pulses=%d onchip=%d",
		cfg.VoltageMV, cfg.Period, cfg.ClockDivider, cfg.InitDelay, cfg.PulsesPerSet, onChip)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sendLocked(cmd); err != nil {
		return err
	}
	return s.port.SetDTR(true)
}

// StopInjection disables injection pulses.
func (s *Session) StopInjection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.port.SetDTR(false); err != nil {
		return err
	}
	return s.sendLocked("inj stop")
}

// Close closes the port.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Close()
}

func (s *Session) sendLocked(command string) error {
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return fmt.Errorf("send %q: %w", strings.TrimSpace(command), err)
	}
	if n != len(command) {
		return fmt.Errorf("send %q: short write", strings.TrimSpace(command))
	}
	return nil
}

// columnMaskCommands emits one "<verb> <col> <rowmask>" command per column.
func columnMaskCommands(verb string, pixels []domain.Pixel) []string {
	masks := map[int]uint64{}
	for _, p := range pixels {
		masks[p.Col] |= 1 << uint(p.Row)
	}
	cols := make([]int, 0, len(masks))
	for c := range masks {
		cols = append(cols, c)
	}
	sort.Ints(cols)

	out := make([]string, 0, len(cols))
	for _, c := range cols {
		out = append(out, fmt.Sprintf("%s %d %09x", verb, c, masks[c]&(1<<pixel.Size-1)))
	}
	return out
}

// registerCommands flattens chip settings to sorted "reg <path> <value>" commands.
func registerCommands(chip map[string]any) []string {
	var out []string
	var walk func(prefix string, v any)
	walk = func(prefix string, v any) {
		switch t := v.(type) {
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				name := k
				if prefix != "" {
					name = prefix + "." + k
				}
				walk(name, t[k])
			}
		default:
			out = append(out, fmt.Sprintf("reg %s %v", prefix, t))
		}
	}
	walk("", chip)
	return out
}

var (
	_ ports.DeviceSession = (*Session)(nil)
	_ ports.Configurer    = (*Session)(nil)
	_ ports.Injector      = (*Session)(nil)
)
