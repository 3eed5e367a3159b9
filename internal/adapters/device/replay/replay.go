// Package replay plays a recorded frame log back as a device session.
package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/pixdaq/internal/clock"
	"github.com/bft-labs/pixdaq/internal/decode"
	"github.com/bft-labs/pixdaq/internal/framelog"
	"github.com/bft-labs/pixdaq/internal/ports"
)

// Option configures a Session.
type Option func(*Session)

// WithInterval waits d between recorded frames, signalling no hits
// in between.
func WithInterval(d time.Duration) Option {
	return func(s *Session) { s.interval = d }
}

// WithClock sets the clock used for pacing.
func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// Session serves recorded frames in order. Each frame is signalled as a
// burst of its own and handed out in reads of at most n bytes.
type Session struct {
	mu       sync.Mutex
	frames   [][]byte
	pending  []byte
	interval time.Duration
	clock    clock.Clock
	nextAt   time.Time
	logger   ports.Logger
}

// Open loads the frame log at path. Lines that do not parse are skipped.
func Open(path string, logger ports.Logger, opts ...Option) (*Session, error) {
	lines, err := framelog.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var frames [][]byte
	for _, l := range lines {
		raw, err := decode.ParseHexLine(l.Hex)
		if err != nil {
			logger.Debug("skipping unreadable frame", ports.Int("line", l.Index), ports.Err(err))
			continue
		}
		if len(raw) > 0 {
			frames = append(frames, raw)
		}
	}
	if len(frames) == 0 {
		logger.Warn("replay log has no frames", ports.String("path", path))
	}
	logger.Info("replay session opened", ports.String("path", path), ports.Int("frames", len(frames)))
	return New(frames, logger, opts...), nil
}

// New returns a session over in-memory frames.
func New(frames [][]byte, logger ports.Logger, opts ...Option) *Session {
	s := &Session{frames: frames, clock: clock.Real{}, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HitsPresent reports whether a frame is in flight or due.
func (s *Session) HitsPresent(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) > 0 {
		return true, nil
	}
	if len(s.frames) == 0 {
		return false, nil
	}
	if s.interval > 0 && s.clock.Now().Before(s.nextAt) {
		return false, nil
	}
	s.pending, s.frames = s.frames[0], s.frames[1:]
	s.nextAt = s.clock.Now().Add(s.interval)
	return true, nil
}

// ReadBuffer returns up to n bytes of the frame in flight.
func (s *Session) ReadBuffer(ctx context.Context, n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("replay: invalid read size %d", n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil, nil
	}
	k := min(n, len(s.pending))
	out := append([]byte(nil), s.pending[:k]...)
	s.pending = s.pending[k:]
	return out, nil
}

// Remaining reports how many frames have not been signalled yet.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Close releases the session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames, s.pending = nil, nil
	return nil
}

var _ ports.DeviceSession = (*Session)(nil)
