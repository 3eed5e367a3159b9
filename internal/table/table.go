// Package table assembles decoded frames into a uniform hit table and
// writes it out.
//
// The column schema is undefined until the first frame decodes to real
// data. Frames that decode to nothing still occupy one all-missing
// placeholder row, so every readable log line stays visible in the output.
package table

import "github.com/bft-labs/pixdaq/internal/decode"

// ProvisionalColumn names the single column used for placeholders emitted
// before the schema is known.
const ProvisionalColumn = "i"

// Row is one table row.
type Row struct {
	// Line is the frame log position the row came from.
	Line int

	// Values is aligned with Table.Columns.
	Values []decode.Value

	// Placeholder marks rows standing in for frames with no data.
	Placeholder bool
}

// Table is an ordered hit table labelled by its source.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row

	fixed bool
}

// New returns an empty table named after its source.
func New(name string) *Table {
	return &Table{Name: name}
}

// Fixed reports whether the schema has been set by a real decode.
func (t *Table) Fixed() bool {
	return t.fixed
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Column returns the index of name in Columns, or -1.
func (t *Table) Column(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

func (t *Table) fix(columns []string) {
	t.Columns = append([]string(nil), columns...)
	t.fixed = true
	for i := range t.Rows {
		t.Rows[i].Values = make([]decode.Value, len(t.Columns))
	}
}

func (t *Table) appendPlaceholder(line int, provisional []string) {
	if !t.fixed {
		t.Columns = append([]string(nil), provisional...)
		for i := range t.Rows {
			t.Rows[i].Values = make([]decode.Value, len(t.Columns))
		}
	}
	t.Rows = append(t.Rows, Row{
		Line:        line,
		Values:      make([]decode.Value, len(t.Columns)),
		Placeholder: true,
	})
}

func (t *Table) appendRecord(line int, rec decode.Record) {
	values := make([]decode.Value, len(t.Columns))
	copy(values, rec)
	t.Rows = append(t.Rows, Row{Line: line, Values: values})
}
