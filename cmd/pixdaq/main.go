package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	logAdapter "github.com/bft-labs/pixdaq/internal/adapters/log"
	"github.com/bft-labs/pixdaq/internal/cliconfig"
)

const helpDescription = `
Take data from a pixel detector readout and turn it into hit tables.

Highlights:
  - Persists every qualifying readout buffer as one hex line in a .dat log.
  - Decodes v3 readout words into a CSV hit table, optionally matching
    column and row hits into pixels.
  - Works against a serial bridge, a recorded .dat log, or a simulator.
  - Configure via file ($HOME/.pixdaq/config.toml), PIXDAQ_* env, or flags.
`

var exampleUsage = strings.TrimSpace(`
  pixdaq run --device /dev/ttyUSB0 -T 60 -t 150 -n cosmics --csv
  pixdaq run --device sim -T -1 --inj 5,7 --injv 300
  pixdaq decode data/20240101-120000_cosmics.dat --match
  pixdaq watch data --sqlite data/runs.db
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:           "pixdaq",
		Short:         "Pixel detector data acquisition",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.pixdaq/config.toml)")
	root.PersistentFlags().StringVarP(&cfg.OutDir, "outdir", "o", cfg.OutDir, "output directory for run files")
	root.PersistentFlags().IntVarP(&cfg.LogLevel, "loglevel", "l", cfg.LogLevel, "console log level: 10 debug, 20 info, 30 warning, 40 error, 50 critical, -1 silent")
	root.PersistentFlags().BoolVar(&cfg.Match, "match", cfg.Match, "also match column and row hits into pixels")
	root.PersistentFlags().StringVar(&cfg.SQLitePath, "sqlite", cfg.SQLitePath, "store decoded hits in this SQLite database")
	root.PersistentFlags().StringVar(&cfg.MetricsListen, "metrics-listen", cfg.MetricsListen, "serve Prometheus metrics on this address, e.g. :9464")

	root.AddCommand(
		newRunCmd(&cfg, &cfgPath),
		newDecodeCmd(&cfg, &cfgPath),
		newWatchCmd(&cfg, &cfgPath),
		newVersionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		log := cliconfig.NewLogger(cliconfig.LevelFromNumeric(cfg.LogLevel), os.Stderr, nil)
		log.Error().Err(err).Msg("pixdaq")
		os.Exit(1)
	}
}

// loadConfig layers the config file and PIXDAQ_* env under the flags set
// on cmd, then validates the result.
func loadConfig(cmd *cobra.Command, cfg *cliconfig.Config, cfgPath string) error {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	}

	if err := cliconfig.ApplyEnvConfig(cfg, changed); err != nil {
		return err
	}
	return cfg.Validate()
}

// consoleLogger returns a logger for commands without a run log file.
func consoleLogger(cfg *cliconfig.Config, component string) *logAdapter.ZerologAdapter {
	zl := cliconfig.NewLogger(cliconfig.LevelFromNumeric(cfg.LogLevel), os.Stderr, nil)
	return logAdapter.NewZerologAdapter(zl).Component(component)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pixdaq %s %s/%s\n", getVersion(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
