// Package sim provides a synthetic device session emitting v3 hit words.
package sim

import (
	"bytes"
	"context"
	"math/rand"
	"sync"

	"github.com/bft-labs/pixdaq/internal/decode"
	"github.com/bft-labs/pixdaq/internal/pixel"
	"github.com/bft-labs/pixdaq/internal/ports"
)

// Idle filler byte emitted between bursts.
const fill = 0xBC

// Config controls the generated stream.
type Config struct {
	Seed int64

	// BurstRate is the chance that a poll without data starts a burst.
	BurstRate float64

	// MaxHitsPerBurst bounds the pixel hits per burst. Each pixel hit
	// produces a row word and a column word.
	MaxHitsPerBurst int

	// IdleReads is the number of filler-only reads after a burst.
	IdleReads int
}

// DefaultConfig returns a moderately busy source.
func DefaultConfig() Config {
	return Config{Seed: 1, BurstRate: 0.05, MaxHitsPerBurst: 4, IdleReads: 3}
}

// Session is a synthetic device.
type Session struct {
	mu      sync.Mutex
	cfg     Config
	rng     *rand.Rand
	pending []byte
	idle    int
	bursts  int
	logger  ports.Logger

	injecting bool
	injected  []ports.InjectionConfig
	enabled   map[int]bool
}

// New returns a session seeded from cfg.
func New(cfg Config, logger ports.Logger) *Session {
	if cfg.MaxHitsPerBurst <= 0 {
		cfg.MaxHitsPerBurst = 1
	}
	return &Session{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		logger: logger,
	}
}

// HitsPresent signals while a burst is in flight.
func (s *Session) HitsPresent(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) > 0 {
		return true, nil
	}
	if s.idle > 0 {
		return false, nil
	}
	rate := s.cfg.BurstRate
	if s.injecting {
		rate = 1
	}
	if s.rng.Float64() >= rate {
		return false, nil
	}
	s.pending = s.burst()
	s.idle = s.cfg.IdleReads
	s.bursts++
	return true, nil
}

// ReadBuffer returns up to n bytes of the burst, padded with idle fill.
// Between bursts it returns filler only.
func (s *Session) ReadBuffer(ctx context.Context, n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 {
		return nil, nil
	}
	if len(s.pending) == 0 {
		if s.idle > 0 {
			s.idle--
		}
		return bytes.Repeat([]byte{fill}, n), nil
	}

	out := make([]byte, n)
	k := copy(out, s.pending)
	s.pending = s.pending[k:]
	for i := k; i < n; i++ {
		out[i] = fill
	}
	return out, nil
}

// Configure records the enabled columns. Hits are only generated in them.
func (s *Session) Configure(ctx context.Context, cfg ports.DeviceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled = map[int]bool{}
	for _, p := range cfg.Enabled {
		s.enabled[p.Col] = true
	}
	s.logger.Debug("sim configured", ports.Int("enabled_pixels", len(cfg.Enabled)))
	return nil
}

// StartInjection makes every poll start a burst.
func (s *Session) StartInjection(ctx context.Context, cfg ports.InjectionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injecting = true
	s.injected = append(s.injected, cfg)
	return nil
}

// StopInjection returns to the configured burst rate.
func (s *Session) StopInjection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.injecting = false
	return nil
}

// Injections returns the injection settings received so far.
func (s *Session) Injections() []ports.InjectionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.InjectionConfig(nil), s.injected...)
}

// Bursts reports how many bursts have been generated.
func (s *Session) Bursts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bursts
}

// Close releases the session.
func (s *Session) Close() error {
	return nil
}

func (s *Session) burst() []byte {
	var buf []byte
	hits := 1 + s.rng.Intn(s.cfg.MaxHitsPerBurst)
	for i := 0; i < hits; i++ {
		col := pixel.FirstEnabled + s.rng.Intn(pixel.Size-pixel.FirstEnabled)
		if len(s.enabled) > 0 && !s.enabled[col] {
			continue
		}
		row := s.rng.Intn(pixel.Size)
		ts := s.rng.Intn(256)
		tot := 50 + s.rng.Intn(400)
		buf = append(buf, decode.EncodeV3Word(row, false, ts, tot)...)
		buf = append(buf, decode.EncodeV3Word(col, true, ts, tot+s.rng.Intn(5))...)
	}
	return buf
}

var (
	_ ports.DeviceSession = (*Session)(nil)
	_ ports.Configurer    = (*Session)(nil)
	_ ports.Injector      = (*Session)(nil)
)
