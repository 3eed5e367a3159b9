package table

import (
	"errors"
	"path/filepath"

	"github.com/bft-labs/pixdaq/internal/decode"
	"github.com/bft-labs/pixdaq/internal/framelog"
	"github.com/bft-labs/pixdaq/internal/ports"
)

// Outcome describes what a single log line contributed.
type Outcome int

const (
	OutcomeRecords Outcome = iota
	OutcomePlaceholder
	OutcomeSkipped
)

// String returns a human-readable representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeRecords:
		return "records"
	case OutcomePlaceholder:
		return "placeholder"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Report counts line outcomes over an assembly.
type Report struct {
	Lines        int
	Records      int
	Placeholders int
	Skipped      int
	OddLength    int
}

// Assembler feeds log lines through a decoder into a Table.
type Assembler struct {
	dec    decode.Decoder
	logger ports.Logger
	table  *Table
	report Report
}

// NewAssembler returns an Assembler building a table labelled name.
func NewAssembler(name string, dec decode.Decoder, logger ports.Logger) *Assembler {
	return &Assembler{dec: dec, logger: logger, table: New(name)}
}

// Add decodes one hex field read at log position index. A non-nil error is
// the reason the line was skipped; it never invalidates the table.
func (a *Assembler) Add(index int, hexField string) (Outcome, error) {
	a.report.Lines++

	raw, err := decode.ParseHexLine(hexField)
	if err != nil {
		a.report.Skipped++
		if errors.Is(err, decode.ErrOddLength) {
			a.report.OddLength++
			a.logger.Warn("skipping malformed line", ports.Int("line", index), ports.Err(err))
		} else {
			a.logger.Debug("skipping line", ports.Int("line", index), ports.Err(err))
		}
		return OutcomeSkipped, err
	}

	res, err := a.dec.Decode(raw, index)
	if err != nil {
		a.report.Skipped++
		a.logger.Debug("skipping undecodable line", ports.Int("line", index), ports.Err(err))
		return OutcomeSkipped, err
	}

	if res.Empty() {
		provisional := []string{ProvisionalColumn}
		if len(res.Records) > 0 && len(res.Columns) > 0 {
			provisional = res.Columns
		}
		a.table.appendPlaceholder(index, provisional)
		a.report.Placeholders++
		return OutcomePlaceholder, nil
	}

	if !a.table.fixed {
		cols := res.Columns
		if len(cols) == 0 {
			cols = a.dec.Columns()
		}
		a.table.fix(cols)
	}
	for _, rec := range res.Records {
		a.table.appendRecord(index, rec)
	}
	a.report.Records += len(res.Records)
	return OutcomeRecords, nil
}

// Table returns the table built so far.
func (a *Assembler) Table() *Table {
	return a.table
}

// Report returns the line outcome counts so far.
func (a *Assembler) Report() Report {
	return a.report
}

// Assemble builds a table from lines in order.
func Assemble(name string, lines []framelog.Line, dec decode.Decoder, logger ports.Logger) (*Table, Report) {
	a := NewAssembler(name, dec, logger)
	for _, l := range lines {
		a.Add(l.Index, l.Hex)
	}
	return a.table, a.report
}

// AssembleFile reads and assembles the frame log at path. The table is
// labelled with the log's file name.
func AssembleFile(path string, dec decode.Decoder, logger ports.Logger) (*Table, Report, error) {
	lines, err := framelog.ReadFile(path)
	if err != nil {
		return nil, Report{}, err
	}
	t, rep := Assemble(filepath.Base(path), lines, dec, logger)
	return t, rep, nil
}
