package decode

import "errors"

// ErrShortFrame is returned when a bitstream is too short to hold even an
// empty frame. The line is skipped, not fatal.
var ErrShortFrame = errors.New("decode: frame too short")

// Decoder decodes one raw frame into records.
type Decoder interface {
	// Columns returns the schema of every non-empty Result.
	Columns() []string

	// Decode decodes raw, tagging records with the readout index.
	Decode(raw []byte, readout int) (Result, error)
}
