// Package acquire implements the real-time acquisition loop.
//
// The loop alternates between two states. While Waiting it polls the
// device's hit signal and backs off. Once hits are signalled it moves to
// Draining and reads buffers until the signal has cleared and enough
// consecutive reads came back without data. Only non-empty, long enough,
// non-idle buffers are persisted.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bft-labs/pixdaq/internal/clock"
	"github.com/bft-labs/pixdaq/internal/domain"
	"github.com/bft-labs/pixdaq/internal/idle"
	"github.com/bft-labs/pixdaq/internal/ports"
)

// DefaultProgressInterval is how often a progress line is logged.
const DefaultProgressInterval = time.Second

// State is the loop state.
type State int

const (
	StateWaiting State = iota
	StateDraining
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateWaiting:
		return "Waiting"
	case StateDraining:
		return "Draining"
	default:
		return "Unknown"
	}
}

// Reason records why a run ended.
type Reason string

const (
	ReasonDeadline    Reason = "deadline"
	ReasonInterrupted Reason = "interrupted"
	ReasonDevice      Reason = "device_error"
	ReasonFrameLog    Reason = "frame_log_error"
)

// Result summarises a finished run.
type Result struct {
	Reason  Reason
	Frames  uint64
	Bytes   uint64
	Reads   uint64
	Bursts  uint64
	LastSeq uint64
	Elapsed time.Duration
}

// Loop drives one acquisition run.
type Loop struct {
	cfg        domain.RunConfig
	dev        ports.DeviceSession
	out        ports.FrameWriter
	classifier *idle.Classifier
	clock      clock.Clock
	logger     ports.Logger
	observer   Observer

	progressEvery time.Duration
	lastProgress  time.Time
	state         State
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithObserver attaches an observer for loop events.
func WithObserver(o Observer) Option {
	return func(l *Loop) { l.observer = o }
}

// WithClassifier replaces the idle classifier, e.g. to change the alphabet.
func WithClassifier(c *idle.Classifier) Option {
	return func(l *Loop) { l.classifier = c }
}

// WithProgressInterval sets how often progress is logged. Zero disables it.
func WithProgressInterval(d time.Duration) Option {
	return func(l *Loop) { l.progressEvery = d }
}

// New validates cfg and returns a Loop reading from dev into out.
func New(cfg domain.RunConfig, dev ports.DeviceSession, out ports.FrameWriter, logger ports.Logger, opts ...Option) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dev == nil || out == nil {
		return nil, fmt.Errorf("%w: device session and frame writer are required", domain.ErrInvalidConfig)
	}

	thresholds := idle.Thresholds{
		FracCutoff: cfg.IdleFracCutoff,
		MinNonIdle: cfg.MinNonIdleCount,
	}
	l := &Loop{
		cfg:           cfg,
		dev:           dev,
		out:           out,
		classifier:    idle.NewClassifier(thresholds),
		clock:         clock.Real{},
		logger:        logger,
		observer:      nopObserver{},
		progressEvery: DefaultProgressInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Run polls the device until the deadline passes, ctx is cancelled, or an
// error occurs. Cancellation is not an error. The caller owns dev and out
// and must close them.
func (l *Loop) Run(ctx context.Context) (Result, error) {
	start := l.clock.Now()
	l.lastProgress = start
	l.state = StateWaiting

	var (
		res     Result
		nextSeq uint64
	)
	finish := func(reason Reason, err error) (Result, error) {
		res.Reason = reason
		res.Elapsed = l.clock.Since(start)
		l.setState(StateWaiting)
		switch {
		case err != nil:
			l.logger.Error("acquisition failed",
				ports.String("reason", string(reason)),
				ports.Uint64("frames", res.Frames),
				ports.Err(err),
			)
		case reason == ReasonInterrupted:
			l.logger.Warn("acquisition interrupted",
				ports.Duration("elapsed", res.Elapsed),
				ports.Uint64("frames", res.Frames),
			)
		default:
			l.logger.Info("acquisition finished",
				ports.Duration("elapsed", res.Elapsed),
				ports.Uint64("frames", res.Frames),
				ports.Uint64("bytes", res.Bytes),
			)
		}
		return res, err
	}

	expired := func() bool {
		return !l.cfg.Unbounded() && l.clock.Since(start) >= l.cfg.Duration
	}

	for {
		if expired() {
			return finish(ReasonDeadline, nil)
		}
		if ctx.Err() != nil {
			return finish(ReasonInterrupted, nil)
		}
		l.progress(start, res.Frames)

		hits, err := l.dev.HitsPresent(ctx)
		if err != nil {
			return finish(l.deviceFailure(ctx, err))
		}
		if !hits {
			l.clock.Sleep(l.cfg.PollBackoff)
			continue
		}

		l.setState(StateDraining)
		res.Bursts++
		streak := 0
		for {
			if expired() {
				return finish(ReasonDeadline, nil)
			}
			if ctx.Err() != nil {
				return finish(ReasonInterrupted, nil)
			}

			buf, err := l.dev.ReadBuffer(ctx, l.cfg.ReadSize)
			if err != nil {
				return finish(l.deviceFailure(ctx, err))
			}
			res.Reads++

			if reject, ok := l.qualify(buf); ok {
				frame := domain.RawFrame{
					Seq:        nextSeq,
					CapturedAt: l.clock.Now(),
					Data:       append([]byte(nil), buf...),
				}
				if err := l.out.Append(frame); err != nil {
					return finish(ReasonFrameLog, fmt.Errorf("write frame %d: %w", frame.Seq, err))
				}
				res.Frames++
				res.Bytes += uint64(len(buf))
				res.LastSeq = frame.Seq
				nextSeq++
				streak = 0
				l.observer.OnFrameWritten(len(buf))
				l.logger.Debug("frame written", ports.Uint64("seq", frame.Seq), ports.Int("bytes", len(buf)))
			} else {
				streak++
				l.observer.OnReadRejected(reject)
			}

			hits, err = l.dev.HitsPresent(ctx)
			if err != nil {
				return finish(l.deviceFailure(ctx, err))
			}
			if !hits && streak >= l.cfg.ConsecutiveNoHitReads {
				break
			}
			if streak > 0 {
				l.clock.Sleep(l.cfg.PollBackoff)
			}
		}
		l.setState(StateWaiting)
	}
}

// qualify reports whether buf should be persisted, or why not.
func (l *Loop) qualify(buf []byte) (RejectReason, bool) {
	switch {
	case len(buf) == 0:
		return RejectEmpty, false
	case len(buf) < l.cfg.MinPayloadBytes:
		return RejectShort, false
	case l.classifier.IsIdle(buf):
		return RejectIdle, false
	default:
		return "", true
	}
}

// deviceFailure maps a device error to an end reason. A call aborted by our
// own cancellation counts as an interruption.
func (l *Loop) deviceFailure(ctx context.Context, err error) (Reason, error) {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return ReasonInterrupted, nil
	}
	return ReasonDevice, fmt.Errorf("%w: %w", domain.ErrDevice, err)
}

func (l *Loop) setState(s State) {
	if l.state == s {
		return
	}
	l.state = s
	l.observer.OnStateChange(s)
}

func (l *Loop) progress(start time.Time, frames uint64) {
	if l.progressEvery <= 0 {
		return
	}
	now := l.clock.Now()
	if now.Sub(l.lastProgress) < l.progressEvery {
		return
	}
	l.lastProgress = now

	fields := []ports.Field{
		ports.Duration("elapsed", now.Sub(start).Round(time.Second)),
		ports.Uint64("frames", frames),
	}
	if !l.cfg.Unbounded() {
		fields = append(fields, ports.Duration("total", l.cfg.Duration))
	}
	l.logger.Info("daq running", fields...)
}
