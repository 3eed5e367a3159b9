// Package match pairs column and row hits of one readout into pixel hits.
//
// The front end reports a pixel as two hits: one on its column line and one
// on its row line, with close timestamps and similar time over threshold.
package match

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/bft-labs/pixdaq/internal/domain"
	"github.com/bft-labs/pixdaq/internal/table"
)

// Default pairing cuts.
const (
	DefaultMaxTimestampDelta = 2
	DefaultMaxToTRatio       = 10.0
)

// Cuts bound how far apart two hits may be and still pair.
type Cuts struct {
	// MaxTimestampDelta is an exclusive bound on |ts1 - ts2|.
	MaxTimestampDelta int

	// MaxToTRatio is an exclusive bound on |tot1 - tot2| / tot1.
	MaxToTRatio float64
}

// DefaultCuts returns the standard cuts.
func DefaultCuts() Cuts {
	return Cuts{MaxTimestampDelta: DefaultMaxTimestampDelta, MaxToTRatio: DefaultMaxToTRatio}
}

// PixelHit is a matched column/row pair.
type PixelHit struct {
	Readout   int
	Col       int
	Row       int
	Timestamp int
	ToTMicros float64
}

// Pixels pairs hits within each readout. Each hit joins at most one pair;
// the first compatible later partner in input order wins, and the ToT ratio
// is taken relative to the earlier hit.
func Pixels(hits []domain.HitRecord, cuts Cuts) []PixelHit {
	var out []PixelHit
	for start := 0; start < len(hits); {
		end := start
		for end < len(hits) && hits[end].Readout == hits[start].Readout {
			end++
		}
		out = append(out, pairReadout(hits[start:end], cuts)...)
		start = end
	}
	return out
}

func pairReadout(hits []domain.HitRecord, cuts Cuts) []PixelHit {
	matched := make([]bool, len(hits))
	var out []PixelHit
	for i := range hits {
		if matched[i] {
			continue
		}
		for j := i + 1; j < len(hits); j++ {
			if matched[j] || !compatible(hits[i], hits[j], cuts) {
				continue
			}
			matched[i], matched[j] = true, true

			col, row := hits[i], hits[j]
			if !col.IsColumn() {
				col, row = row, col
			}
			out = append(out, PixelHit{
				Readout:   col.Readout,
				Col:       col.Location,
				Row:       row.Location,
				Timestamp: col.Timestamp,
				ToTMicros: (col.ToTMicros + row.ToTMicros) * 0.5,
			})
			break
		}
	}
	return out
}

func compatible(a, b domain.HitRecord, cuts Cuts) bool {
	if a.IsColumn() == b.IsColumn() {
		return false
	}
	dt := a.Timestamp - b.Timestamp
	if dt < 0 {
		dt = -dt
	}
	if dt >= cuts.MaxTimestampDelta {
		return false
	}
	if a.ToTMicros == 0 {
		return b.ToTMicros == 0
	}
	return math.Abs(a.ToTMicros-b.ToTMicros)/a.ToTMicros < cuts.MaxToTRatio
}

// HitsFromTable extracts hit records from a decoded table. Placeholder rows
// and rows missing any field needed for pairing are dropped. Other hit
// columns are copied when present.
func HitsFromTable(t *table.Table) []domain.HitRecord {
	idx := map[string]int{}
	for _, name := range []string{"readout", "location", "isCol", "timestamp", "tot_us"} {
		i := t.Column(name)
		if i < 0 {
			return nil
		}
		idx[name] = i
	}
	optInt := func(row table.Row, name string) int {
		i := t.Column(name)
		if i < 0 || row.Values[i].IsMissing() {
			return 0
		}
		return int(row.Values[i].I)
	}

	var hits []domain.HitRecord
	for _, row := range t.Rows {
		if row.Placeholder {
			continue
		}
		readout, loc, isCol, ts, tot := row.Values[idx["readout"]], row.Values[idx["location"]],
			row.Values[idx["isCol"]], row.Values[idx["timestamp"]], row.Values[idx["tot_us"]]
		if readout.IsMissing() || loc.IsMissing() || isCol.IsMissing() || ts.IsMissing() || tot.IsMissing() {
			continue
		}
		h := domain.HitRecord{
			Readout:   int(readout.I),
			ChipID:    optInt(row, "chipID"),
			Payload:   optInt(row, "payload"),
			Location:  int(loc.I),
			IsCol:     int(isCol.I),
			Timestamp: int(ts.I),
			ToTMSB:    optInt(row, "tot_msb"),
			ToTLSB:    optInt(row, "tot_lsb"),
			ToTTotal:  optInt(row, "tot_total"),
			ToTMicros: tot.F,
		}
		if i := t.Column("hittime"); i >= 0 && !row.Values[i].IsMissing() {
			h.HitTime = row.Values[i].F
		}
		hits = append(hits, h)
	}
	return hits
}

// WriteCSV writes matched pixels with a header row.
func WriteCSV(w io.Writer, pixels []PixelHit) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"readout", "col", "row", "timestamp", "tot_us"}); err != nil {
		return err
	}
	for _, p := range pixels {
		rec := []string{
			strconv.Itoa(p.Readout),
			strconv.Itoa(p.Col),
			strconv.Itoa(p.Row),
			strconv.Itoa(p.Timestamp),
			strconv.FormatFloat(p.ToTMicros, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes pixels to path through a temp file and rename.
func WriteCSVFile(path string, pixels []PixelHit) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	err = WriteCSV(bw, pixels)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}
