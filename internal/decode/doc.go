// Package decode turns persisted readout frames into tabular hit records.
//
// A [Decoder] is a chip-specific strategy. The pipeline in internal/table
// only relies on the [Result] shape it returns: a column list and zero or
// more records of nullable values. [V3] implements the AstroPix v3 framing.
//
// [ParseHexLine] normalises one hex field of the frame log before decoding.
package decode
