package run

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/bft-labs/pixdaq/internal/adapters/fs"
)

// StampLayout formats run start times in file names.
const StampLayout = "20060102-150405"

// Names holds the output paths of one run.
type Names struct {
	// Prefix is the data path without extension; injection runs carry an
	// "_inj" suffix.
	Prefix string

	Dat    string
	CSV    string
	Pixels string
	Status string
	Log    string
	Config string
}

// NewNames lays out a run under outDir started at start. name and chip
// may be empty.
func NewNames(outDir, name, chip string, injection bool, start time.Time) Names {
	base := start.Format(StampLayout)
	if name != "" {
		base += "_" + name
	}
	base = filepath.Join(outDir, base)

	prefix := base
	if injection {
		prefix += "_inj"
	}
	n := NamesFromPrefix(prefix)
	n.Log = base + ".log"
	if chip = strings.TrimSuffix(filepath.Base(chip), filepath.Ext(chip)); chip != "" && chip != "." {
		n.Config = base + "_" + chip + ".yml"
	} else {
		n.Config = base + ".yml"
	}
	return n
}

// NamesFromPrefix derives the data paths of an existing run.
func NamesFromPrefix(prefix string) Names {
	return Names{
		Prefix: prefix,
		Dat:    prefix + ".dat",
		CSV:    prefix + ".csv",
		Pixels: prefix + "_pixels.csv",
		Status: prefix + fs.StatusSuffix,
	}
}

// NamesFromDat derives the data paths of the run that wrote dat.
func NamesFromDat(dat string) Names {
	return NamesFromPrefix(strings.TrimSuffix(dat, ".dat"))
}
