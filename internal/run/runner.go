// Package run orchestrates one data taking run: device configuration,
// acquisition into the frame log, and the optional decode afterwards.
//
// Every run persists a status file. Once it reports the log as acquired
// the log is closed and may be decoded by another process.
package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/pixdaq/internal/acquire"
	"github.com/bft-labs/pixdaq/internal/adapters/fs"
	"github.com/bft-labs/pixdaq/internal/clock"
	"github.com/bft-labs/pixdaq/internal/decode"
	"github.com/bft-labs/pixdaq/internal/domain"
	"github.com/bft-labs/pixdaq/internal/framelog"
	"github.com/bft-labs/pixdaq/internal/pixel"
	"github.com/bft-labs/pixdaq/internal/ports"
)

// DefaultMaxRemnantReads bounds the pre-run buffer drain.
const DefaultMaxRemnantReads = 1000

// Config describes a run.
type Config struct {
	Loop domain.RunConfig

	ThresholdMV  float64
	AnalogColumn int
	Chip         map[string]any

	// Injection, when set, injects into the target's pixels.
	Injection          *pixel.Target
	InjectionVoltageMV float64

	// MaxRemnantReads bounds the reads discarded after configuration.
	MaxRemnantReads int

	// Device labels the session in the log header and config dump.
	Device string

	SaveCSV bool
	Decode  DecodeOptions
}

// Report is the outcome of a run.
type Report struct {
	Status  domain.RunStatus
	Acquire acquire.Result
	Decode  *DecodeReport
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock replaces the wall clock, for the runner and its loop.
func WithClock(c clock.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithObserver attaches an acquisition observer.
func WithObserver(o acquire.Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// WithPhaseObserver is notified of phase changes.
func WithPhaseObserver(o PhaseObserver) Option {
	return func(r *Runner) { r.phaseObserver = o }
}

// WithDecoder replaces the readout decoder.
func WithDecoder(d decode.Decoder) Option {
	return func(r *Runner) { r.decoder = d }
}

// WithStatusRepository replaces the status file next to the run.
func WithStatusRepository(s ports.StatusRepository) Option {
	return func(r *Runner) { r.status = s }
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// Runner executes a single run. It is not reusable.
type Runner struct {
	cfg    Config
	names  Names
	dev    ports.DeviceSession
	logger ports.Logger

	clock         clock.Clock
	observer      acquire.Observer
	phaseObserver PhaseObserver
	decoder       decode.Decoder
	status        ports.StatusRepository
	runID         string

	lifecycle *Lifecycle
	current   domain.RunStatus
}

// New prepares a run of dev writing to names. The runner takes ownership
// of dev and closes it.
func New(cfg Config, names Names, dev ports.DeviceSession, logger ports.Logger, opts ...Option) (*Runner, error) {
	if err := cfg.Loop.Validate(); err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, fmt.Errorf("%w: device session is required", domain.ErrInvalidConfig)
	}
	if cfg.MaxRemnantReads <= 0 {
		cfg.MaxRemnantReads = DefaultMaxRemnantReads
	}

	r := &Runner{
		cfg:    cfg,
		names:  names,
		dev:    dev,
		logger: logger,
		clock:  clock.Real{},
		status: fs.NewStatusFile(names.Prefix),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.decoder == nil {
		r.decoder = decode.NewV3(r.clock)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	r.lifecycle = NewLifecycle(logger, r.phaseObserver)
	return r, nil
}

// RunID returns the run identifier.
func (r *Runner) RunID() string {
	return r.runID
}

// Run executes the run. Cancelling ctx stops acquisition early; the frame
// log is still closed and decoded. The device is always closed.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	var rep Report
	defer func() {
		if err := r.dev.Close(); err != nil {
			r.logger.Warn("device close failed", ports.Err(err))
		}
	}()

	r.current = domain.RunStatus{
		RunID:     r.runID,
		Prefix:    r.names.Prefix,
		StartedAt: r.clock.Now(),
	}
	r.logger.Info("run started",
		ports.String("run_id", r.runID),
		ports.String("device", r.cfg.Device),
		ports.String("prefix", r.names.Prefix),
		ports.String("started_at", r.current.StartedAt.Format(time.RFC3339)),
		ports.Duration("duration", r.cfg.Loop.Duration),
		ports.Float64("threshold_mv", r.cfg.ThresholdMV),
		ports.Int("analog_column", r.cfg.AnalogColumn),
		ports.Bool("injection", r.cfg.Injection != nil),
		ports.Bool("save_csv", r.cfg.SaveCSV),
	)

	if err := r.transition(ctx, PhaseConfiguring, "start"); err != nil {
		return rep, err
	}
	plan, err := r.configure(ctx)
	if err != nil {
		return r.fail(ctx, rep, err)
	}
	r.dumpConfig(plan)
	r.drainRemnants(ctx)

	w, err := framelog.Create(r.names.Dat)
	if err != nil {
		return r.fail(ctx, rep, err)
	}
	if err := r.transition(ctx, PhaseAcquiring, "configured"); err != nil {
		w.Close()
		return rep, err
	}

	res, loopErr := r.acquire(ctx, w)
	rep.Acquire = res
	if err := w.Close(); err != nil && loopErr == nil {
		loopErr = err
	}

	stats := w.Stats()
	r.current.Acquired = true
	r.current.FramesWritten = stats.Frames
	r.current.BytesWritten = stats.Bytes
	r.current.Reason = string(res.Reason)
	if stats.Frames > 0 {
		seq := stats.LastSeq
		r.current.LastSeq = &seq
	}
	if loopErr != nil {
		return r.fail(ctx, rep, loopErr)
	}

	if r.cfg.SaveCSV {
		if err := r.transition(ctx, PhaseDecoding, string(res.Reason)); err != nil {
			return rep, err
		}
		opts := r.cfg.Decode
		opts.RunID = r.runID
		// Decode finishes on the closed log even after cancellation.
		drep, err := Decode(context.WithoutCancel(ctx), r.names, r.decoder, opts, r.logger)
		rep.Decode = &drep
		if err != nil {
			return r.fail(ctx, rep, err)
		}
	}

	r.current.EndedAt = r.clock.Now()
	if err := r.transition(ctx, PhaseDone, string(res.Reason)); err != nil {
		return rep, err
	}
	rep.Status = r.current
	r.logger.Info("run finished",
		ports.String("run_id", r.runID),
		ports.String("reason", string(res.Reason)),
		ports.Uint64("frames", stats.Frames),
	)
	return rep, nil
}

func (r *Runner) configure(ctx context.Context) (pixel.Plan, error) {
	plan := pixel.Default()
	if r.cfg.Injection != nil {
		if _, ok := r.dev.(ports.Injector); !ok {
			return plan, fmt.Errorf("%w: device does not support injection", domain.ErrInvalidConfig)
		}
		var err error
		if plan, err = pixel.WithInjection(*r.cfg.Injection); err != nil {
			return plan, err
		}
	}

	c, ok := r.dev.(ports.Configurer)
	if !ok {
		r.logger.Debug("device takes no configuration")
		return plan, nil
	}
	err := c.Configure(ctx, ports.DeviceConfig{
		ThresholdMV:  r.cfg.ThresholdMV,
		AnalogColumn: r.cfg.AnalogColumn,
		Enabled:      plan.Enabled,
		Injected:     plan.Injected,
		Chip:         r.cfg.Chip,
	})
	if err != nil {
		return plan, fmt.Errorf("%w: configure: %w", domain.ErrDevice, err)
	}
	return plan, nil
}

// drainRemnants discards data left in the device from before the run.
func (r *Runner) drainRemnants(ctx context.Context) {
	var reads, discarded int
	for reads < r.cfg.MaxRemnantReads && ctx.Err() == nil {
		buf, err := r.dev.ReadBuffer(ctx, r.cfg.Loop.ReadSize)
		if err != nil {
			r.logger.Warn("remnant drain stopped", ports.Err(err))
			break
		}
		reads++
		if len(buf) == 0 {
			break
		}
		discarded += len(buf)
	}
	if discarded > 0 {
		r.logger.Info("discarded remnant data", ports.Int("bytes", discarded), ports.Int("reads", reads))
	}
}

func (r *Runner) acquire(ctx context.Context, w *framelog.Writer) (acquire.Result, error) {
	opts := []acquire.Option{acquire.WithClock(r.clock)}
	if r.observer != nil {
		opts = append(opts, acquire.WithObserver(r.observer))
	}
	loop, err := acquire.New(r.cfg.Loop, r.dev, w, r.logger, opts...)
	if err != nil {
		return acquire.Result{}, err
	}

	if r.cfg.Injection != nil {
		inj := r.dev.(ports.Injector)
		icfg := ports.DefaultInjectionConfig(r.cfg.InjectionVoltageMV)
		if err := inj.StartInjection(ctx, icfg); err != nil {
			return acquire.Result{}, fmt.Errorf("%w: start injection: %w", domain.ErrDevice, err)
		}
		r.logger.Info("injection started",
			ports.String("target", r.cfg.Injection.String()),
			ports.Float64("voltage_mv", icfg.VoltageMV),
		)
		defer func() {
			if err := inj.StopInjection(context.WithoutCancel(ctx)); err != nil {
				r.logger.Error("stop injection failed", ports.Err(err))
			}
		}()
	}

	return loop.Run(ctx)
}

func (r *Runner) dumpConfig(plan pixel.Plan) {
	if r.names.Config == "" {
		return
	}
	d := ConfigDump{
		RunID:          r.runID,
		StartedAt:      r.current.StartedAt,
		Device:         r.cfg.Device,
		ThresholdMV:    r.cfg.ThresholdMV,
		AnalogColumn:   r.cfg.AnalogColumn,
		Loop:           loopDump(r.cfg.Loop),
		EnabledPixels:  len(plan.Enabled),
		InjectedPixels: len(plan.Injected),
		Chip:           r.cfg.Chip,
	}
	if r.cfg.Injection != nil {
		icfg := ports.DefaultInjectionConfig(r.cfg.InjectionVoltageMV)
		d.Injection = &icfg
		d.InjectAt = r.cfg.Injection.String()
	}
	if err := WriteConfigDump(r.names.Config, d); err != nil {
		r.logger.Warn("config dump failed", ports.String("path", r.names.Config), ports.Err(err))
	}
}

func (r *Runner) transition(ctx context.Context, p Phase, reason string) error {
	if err := r.lifecycle.TransitionTo(p, reason); err != nil {
		return err
	}
	r.current.Phase = p.String()
	if err := r.status.Save(context.WithoutCancel(ctx), r.current); err != nil {
		r.logger.Warn("status save failed", ports.Err(err))
	}
	if r.cfg.Decode.Sink != nil {
		if err := r.cfg.Decode.Sink.RecordRun(context.WithoutCancel(ctx), r.current); err != nil {
			r.logger.Warn("run record failed", ports.Err(err))
		}
	}
	return nil
}

func (r *Runner) fail(ctx context.Context, rep Report, cause error) (Report, error) {
	r.current.Error = cause.Error()
	r.current.EndedAt = r.clock.Now()
	if err := r.transition(ctx, PhaseFailed, cause.Error()); err != nil {
		return rep, errors.Join(cause, err)
	}
	rep.Status = r.current
	r.logger.Error("run failed", ports.String("run_id", r.runID), ports.Err(cause))
	return rep, cause
}
