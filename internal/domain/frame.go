package domain

import "time"

// RawFrame is a single readout buffer accepted by the acquisition loop.
// Frames are immutable once written to the frame log.
type RawFrame struct {
	// Seq is strictly increasing within a run and starts at 0.
	Seq uint64

	// CapturedAt is the wall-clock time the buffer was read.
	CapturedAt time.Time

	// Data is the raw buffer content.
	Data []byte
}

// Len returns the payload length in bytes.
func (f RawFrame) Len() int {
	return len(f.Data)
}
