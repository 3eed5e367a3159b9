package decode

import "strconv"

// Kind identifies what a Value holds. The zero Kind is Missing.
type Kind uint8

const (
	Missing Kind = iota
	Int
	Float
)

// Value is a nullable table cell.
type Value struct {
	Kind Kind
	I    int64
	F    float64
}

// IntValue returns a Value holding i.
func IntValue(i int) Value { return Value{Kind: Int, I: int64(i)} }

// FloatValue returns a Value holding f.
func FloatValue(f float64) Value { return Value{Kind: Float, F: f} }

// IsMissing reports whether v holds no value.
func (v Value) IsMissing() bool { return v.Kind == Missing }

// String formats v for CSV output. Missing values format as "".
func (v Value) String() string {
	switch v.Kind {
	case Int:
		return strconv.FormatInt(v.I, 10)
	case Float:
		return strconv.FormatFloat(v.F, 'f', -1, 64)
	default:
		return ""
	}
}

// Record is one decoded row, aligned with Result.Columns.
type Record []Value

// AllMissing reports whether every value in r is missing.
func (r Record) AllMissing() bool {
	for _, v := range r {
		if !v.IsMissing() {
			return false
		}
	}
	return true
}

// Result is the decoder output for one frame.
type Result struct {
	Columns []string
	Records []Record
}

// Empty reports whether the result carries no usable data: either no
// records at all, or records whose every value is missing. A result with
// some values missing is not empty.
func (r Result) Empty() bool {
	for _, rec := range r.Records {
		if !rec.AllMissing() {
			return false
		}
	}
	return true
}
