package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	logAdapter "github.com/bft-labs/pixdaq/internal/adapters/log"
	"github.com/bft-labs/pixdaq/internal/adapters/metrics"
	"github.com/bft-labs/pixdaq/internal/adapters/sqlite"
	"github.com/bft-labs/pixdaq/internal/cliconfig"
	"github.com/bft-labs/pixdaq/internal/match"
	"github.com/bft-labs/pixdaq/internal/run"
)

func newRunCmd(cfg *cliconfig.Config, cfgPath *string) *cobra.Command {
	var (
		runtimeSec int
		inject     []int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Configure the detector and acquire one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("runtime") {
				cfg.Runtime = time.Duration(runtimeSec) * time.Second
			}
			if cmd.Flags().Changed("inj") {
				if len(inject) != 2 {
					return fmt.Errorf("--inj takes a column and a row, got %d values", len(inject))
				}
				cfg.Inject = fmt.Sprintf("%d,%d", inject[0], inject[1])
			}
			if err := loadConfig(cmd, cfg, *cfgPath); err != nil {
				return err
			}
			return runAcquisition(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&runtimeSec, "runtime", "T", int(cfg.Runtime/time.Second), "run time in seconds, negative runs until interrupted")
	f.Float64VarP(&cfg.ThresholdMV, "thr", "t", cfg.ThresholdMV, "global threshold in mV")
	f.StringVarP(&cfg.Name, "name", "n", cfg.Name, "name appended to the run file names")
	f.StringVarP(&cfg.ChipConfig, "yml", "y", cfg.ChipConfig, "chip configuration YAML")
	f.BoolVar(&cfg.SaveCSV, "csv", cfg.SaveCSV, "decode the run into a CSV table when it ends")
	f.IntSliceVar(&inject, "inj", nil, "inject into pixel col,row; -1 scans that axis")
	f.Float64Var(&cfg.InjectionMV, "injv", cfg.InjectionMV, "injection voltage in mV")
	f.IntVarP(&cfg.AnalogColumn, "analog", "a", cfg.AnalogColumn, "column routed to the analog monitor")
	f.StringVar(&cfg.Device, "device", cfg.Device, "device: serial port path, serial:<port>, replay:<file.dat> or sim")
	f.IntVar(&cfg.SimSeed, "sim-seed", cfg.SimSeed, "seed for the simulated device")

	f.IntVar(&cfg.ReadSize, "read-size", cfg.ReadSize, "bytes requested per buffer read")
	f.IntVar(&cfg.MinPayloadBytes, "min-payload", cfg.MinPayloadBytes, "minimum bytes for a read to be kept")
	f.IntVar(&cfg.ConsecutiveNoHitReads, "no-hit-reads", cfg.ConsecutiveNoHitReads, "empty reads that end a drain")
	f.DurationVar(&cfg.PollBackoff, "poll-backoff", cfg.PollBackoff, "sleep between polls")
	f.Float64Var(&cfg.IdleFracCutoff, "idle-frac", cfg.IdleFracCutoff, "idle byte fraction at which a read is discarded")
	f.IntVar(&cfg.MinNonIdleCount, "min-non-idle", cfg.MinNonIdleCount, "non-idle bytes that keep a read regardless of fraction")
	f.IntVar(&cfg.MaxRemnantReads, "max-remnant-reads", cfg.MaxRemnantReads, "reads discarded at most before acquiring")

	f.IntVar(&cfg.Serial.BaudRate, "serial-baud", 0, "serial baud rate (default 921600)")
	f.IntVar(&cfg.Serial.DataBits, "serial-data-bits", 0, "serial data bits (default 8)")
	f.IntVar(&cfg.Serial.StopBits, "serial-stop-bits", 0, "serial stop bits (default 1)")
	f.StringVar(&cfg.Serial.Parity, "serial-parity", "", "serial parity: N, E, O, M or S")
	f.StringVar(&cfg.Serial.IRQLine, "serial-irq", "", "modem line carrying the hit signal: cts, dsr, dcd or ri")
	f.BoolVar(&cfg.Serial.IRQActiveLow, "serial-irq-active-low", false, "hit signal is active low")
	f.DurationVar(&cfg.Serial.ReadTimeout, "serial-read-timeout", 0, "timeout of one serial read")
	return cmd
}

func runAcquisition(ctx context.Context, cfg *cliconfig.Config) error {
	target, err := cfg.InjectionTarget()
	if err != nil {
		return err
	}
	chipPath := cliconfig.ResolveChipConfig(cfg.ChipConfig)
	names := run.NewNames(cfg.OutDir, cfg.Name, chipPath, target != nil, time.Now())

	if err := os.MkdirAll(filepath.Dir(names.Log), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	logFile, err := os.OpenFile(names.Log, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer logFile.Close()

	zl := cliconfig.NewLogger(cliconfig.LevelFromNumeric(cfg.LogLevel), os.Stderr, logFile)
	base := logAdapter.NewZerologAdapter(zl)
	logger := base.Component("run")

	chip, err := cliconfig.LoadChipConfig(chipPath)
	if err != nil {
		return err
	}

	rcfg := run.Config{
		Loop:               cfg.RunConfig(),
		ThresholdMV:        cfg.ThresholdMV,
		AnalogColumn:       cfg.AnalogColumn,
		Chip:               chip,
		Injection:          target,
		InjectionVoltageMV: cfg.InjectionMV,
		MaxRemnantReads:    cfg.MaxRemnantReads,
		Device:             cfg.Device,
		SaveCSV:            cfg.SaveCSV,
		Decode: run.DecodeOptions{
			Match: cfg.Match,
			Cuts:  match.DefaultCuts(),
		},
	}

	var opts []run.Option
	if cfg.MetricsListen != "" {
		reg := prometheus.NewRegistry()
		obs := metrics.NewPromObserver(reg)
		srv, err := metrics.Listen(cfg.MetricsListen, reg, base.Component("metrics"))
		if err != nil {
			return err
		}
		srv.Serve()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}()
		opts = append(opts, run.WithObserver(obs), run.WithPhaseObserver(obs))
	}
	if cfg.SQLitePath != "" {
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer store.Close()
		rcfg.Decode.Sink = store
	}

	dev, err := openDevice(cfg, base.Component("device"))
	if err != nil {
		return err
	}
	r, err := run.New(rcfg, names, dev, logger, opts...)
	if err != nil {
		dev.Close()
		return err
	}
	rep, err := r.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d frames, %d bytes (%s)\n", names.Dat, rep.Status.FramesWritten, rep.Status.BytesWritten, rep.Status.Reason)
	if rep.Decode != nil {
		fmt.Printf("%s: %d rows\n", names.CSV, rep.Decode.Rows)
	}
	return nil
}
