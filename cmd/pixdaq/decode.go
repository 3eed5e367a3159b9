package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bft-labs/pixdaq/internal/adapters/fs"
	"github.com/bft-labs/pixdaq/internal/adapters/sqlite"
	"github.com/bft-labs/pixdaq/internal/clock"
	"github.com/bft-labs/pixdaq/internal/cliconfig"
	"github.com/bft-labs/pixdaq/internal/decode"
	"github.com/bft-labs/pixdaq/internal/match"
	"github.com/bft-labs/pixdaq/internal/ports"
	"github.com/bft-labs/pixdaq/internal/run"
)

func newDecodeCmd(cfg *cliconfig.Config, cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "decode <run.dat>...",
		Short: "Decode frame logs into CSV hit tables",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, cfg, *cfgPath); err != nil {
				return err
			}
			logger := consoleLogger(cfg, "decode")

			opts := run.DecodeOptions{Match: cfg.Match, Cuts: match.DefaultCuts()}
			if cfg.SQLitePath != "" {
				store, err := sqlite.Open(cfg.SQLitePath)
				if err != nil {
					return err
				}
				defer store.Close()
				opts.Sink = store
			}

			dec := decode.NewV3(clock.Real{})
			var failed error
			for _, arg := range args {
				names := run.NamesFromDat(arg)
				if !strings.HasSuffix(arg, ".dat") {
					names = run.NamesFromPrefix(arg)
				}
				rep, err := decodeRun(cmd, names, dec, opts, logger)
				if err != nil {
					logger.Error("decode failed", ports.String("dat", names.Dat), ports.Err(err))
					failed = errors.Join(failed, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows, %d pixels\n", names.CSV, rep.Rows, rep.Pixels)
			}
			return failed
		},
	}
}

// decodeRun decodes one run, attributing sink rows to the run ID in its
// status file when there is one.
func decodeRun(cmd *cobra.Command, names run.Names, dec decode.Decoder, opts run.DecodeOptions, logger ports.Logger) (run.DecodeReport, error) {
	ctx := cmd.Context()
	status, err := fs.NewStatusFile(names.Prefix).Load(ctx)
	if err != nil {
		logger.Warn("status unreadable", ports.String("prefix", names.Prefix), ports.Err(err))
	}
	if status.RunID != "" {
		opts.RunID = status.RunID
		if opts.Sink != nil {
			if err := opts.Sink.RecordRun(ctx, status); err != nil {
				return run.DecodeReport{}, fmt.Errorf("record run: %w", err)
			}
		}
	}
	return run.Decode(ctx, names, dec, opts, logger)
}
