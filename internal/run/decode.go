package run

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bft-labs/pixdaq/internal/decode"
	"github.com/bft-labs/pixdaq/internal/domain"
	"github.com/bft-labs/pixdaq/internal/match"
	"github.com/bft-labs/pixdaq/internal/ports"
	"github.com/bft-labs/pixdaq/internal/table"
)

// Sink stores decoded runs, e.g. in a database.
type Sink interface {
	RecordRun(ctx context.Context, s domain.RunStatus) error
	SaveHits(ctx context.Context, runID string, hits []domain.HitRecord) error
	SavePixels(ctx context.Context, runID string, pixels []match.PixelHit) error
}

// DecodeOptions selects the outputs produced from a frame log.
type DecodeOptions struct {
	// Match also pairs hits into pixels and writes them.
	Match bool
	Cuts  match.Cuts

	// Sink, if set, receives the hits and pixels under RunID.
	Sink  Sink
	RunID string
}

// DecodeReport summarises a decode.
type DecodeReport struct {
	Table  table.Report
	Rows   int
	Hits   int
	Pixels int
}

// Decode turns the frame log of n into its CSV table, and optionally into
// matched pixels and sink rows.
func Decode(ctx context.Context, n Names, dec decode.Decoder, opts DecodeOptions, logger ports.Logger) (DecodeReport, error) {
	var rep DecodeReport

	t, trep, err := table.AssembleFile(n.Dat, dec, logger)
	if err != nil {
		return rep, err
	}
	rep.Table, rep.Rows = trep, t.Len()
	if err := table.WriteCSVFile(n.CSV, t); err != nil {
		return rep, err
	}
	logger.Info("csv written",
		ports.String("path", n.CSV),
		ports.Int("rows", rep.Rows),
		ports.Int("placeholders", trep.Placeholders),
		ports.Int("skipped", trep.Skipped),
	)

	if !opts.Match && opts.Sink == nil {
		return rep, nil
	}

	hits := match.HitsFromTable(t)
	rep.Hits = len(hits)

	var pixels []match.PixelHit
	if opts.Match {
		cuts := opts.Cuts
		if cuts == (match.Cuts{}) {
			cuts = match.DefaultCuts()
		}
		pixels = match.Pixels(hits, cuts)
		rep.Pixels = len(pixels)
		if err := match.WriteCSVFile(n.Pixels, pixels); err != nil {
			return rep, err
		}
		logger.Info("pixels written", ports.String("path", n.Pixels), ports.Int("pixels", rep.Pixels))
	}

	if opts.Sink != nil {
		runID := opts.RunID
		if runID == "" {
			runID = filepath.Base(n.Prefix)
		}
		if err := opts.Sink.SaveHits(ctx, runID, hits); err != nil {
			return rep, fmt.Errorf("store hits: %w", err)
		}
		if opts.Match {
			if err := opts.Sink.SavePixels(ctx, runID, pixels); err != nil {
				return rep, fmt.Errorf("store pixels: %w", err)
			}
		}
	}
	return rep, nil
}
