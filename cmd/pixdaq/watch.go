package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bft-labs/pixdaq/internal/adapters/sqlite"
	"github.com/bft-labs/pixdaq/internal/clock"
	"github.com/bft-labs/pixdaq/internal/cliconfig"
	"github.com/bft-labs/pixdaq/internal/decode"
	"github.com/bft-labs/pixdaq/internal/domain"
	"github.com/bft-labs/pixdaq/internal/match"
	"github.com/bft-labs/pixdaq/internal/run"
	"github.com/bft-labs/pixdaq/internal/watch"
)

func newWatchCmd(cfg *cliconfig.Config, cfgPath *string) *cobra.Command {
	wcfg := watch.DefaultConfig("")

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Decode runs in a directory as they complete",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, cfg, *cfgPath); err != nil {
				return err
			}
			wcfg.Dir = cfg.OutDir
			if len(args) == 1 {
				wcfg.Dir = args[0]
			}
			logger := consoleLogger(cfg, "watch")

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
			fn := func(ctx context.Context, names run.Names, status domain.RunStatus) error {
				o := opts
				o.RunID = status.RunID
				if o.Sink != nil && status.RunID != "" {
					if err := o.Sink.RecordRun(ctx, status); err != nil {
						return fmt.Errorf("record run: %w", err)
					}
				}
				_, err := run.Decode(ctx, names, dec, o, logger)
				return err
			}
			return watch.New(wcfg, fn, logger).Run(cmd.Context())
		},
	}

	cmd.Flags().DurationVar(&wcfg.DebounceDelay, "debounce", wcfg.DebounceDelay, "delay collapsing file events of one run")
	cmd.Flags().IntVar(&wcfg.MaxAttempts, "attempts", wcfg.MaxAttempts, "decode attempts per run")
	return cmd
}
