package decode

import (
	"bytes"
	"math/bits"

	"github.com/bft-labs/pixdaq/internal/clock"
	"github.com/bft-labs/pixdaq/internal/domain"
)

// AstroPix v3 framing constants. Words arrive LSB first; Marker is the
// first byte of a hit word as seen on the wire.
const (
	V3HitBytes              = 5
	V3Marker           byte = 0x20
	V3SampleClockNanos      = 5.0
)

var heartbeat = []byte{0xBC, 0xBC}

// V3 decodes AstroPix v3 readouts.
type V3 struct {
	clock         clock.Clock
	sampleClockNS float64
}

// NewV3 returns a v3 decoder stamping hits with the time from c.
func NewV3(c clock.Clock) *V3 {
	if c == nil {
		c = clock.Real{}
	}
	return &V3{clock: c, sampleClockNS: V3SampleClockNanos}
}

// Columns returns the hit table schema.
func (d *V3) Columns() []string {
	return domain.HitColumns
}

// Decode implements Decoder.
func (d *V3) Decode(raw []byte, readout int) (Result, error) {
	hits, err := d.DecodeHits(raw, readout)
	if err != nil {
		return Result{}, err
	}
	res := Result{Columns: d.Columns(), Records: make([]Record, 0, len(hits))}
	for _, h := range hits {
		res.Records = append(res.Records, HitToRecord(h))
	}
	return res, nil
}

// DecodeHits scans raw for hit words. A trailing word cut short by the
// buffer end is ignored, as are words overlapping a heartbeat.
func (d *V3) DecodeHits(raw []byte, readout int) ([]domain.HitRecord, error) {
	if len(raw) == 0 {
		return nil, ErrShortFrame
	}

	hittime := float64(d.clock.Now().UnixNano()) / 1e9
	var hits []domain.HitRecord
	for pos := 0; pos < len(raw); {
		if raw[pos] != V3Marker {
			pos++
			continue
		}
		if pos+V3HitBytes > len(raw) {
			break
		}
		word := raw[pos : pos+V3HitBytes]
		if bytes.Contains(word, heartbeat) {
			pos++
			continue
		}
		h := d.decodeWord(word, readout)
		h.HitTime = hittime
		hits = append(hits, h)
		pos += V3HitBytes
	}
	return hits, nil
}

func (d *V3) decodeWord(word []byte, readout int) domain.HitRecord {
	var b [V3HitBytes]byte
	for i := range b {
		b[i] = bits.Reverse8(word[i])
	}

	totMSB := int(b[3] & 0x0F)
	totLSB := int(b[4])
	total := totMSB<<8 | totLSB

	return domain.HitRecord{
		Readout:   readout,
		ChipID:    int(b[0]>>3) & 0x1F,
		Payload:   int(b[0] & 0x07),
		Location:  int(b[1] & 0x3F),
		IsCol:     int(b[1]>>7) & 0x01,
		Timestamp: int(b[2]),
		ToTMSB:    totMSB,
		ToTLSB:    totLSB,
		ToTTotal:  total,
		ToTMicros: float64(total) * d.sampleClockNS * 0.001,
	}
}

// EncodeV3Word builds the on-wire hit word for a chip 0 hit.
func EncodeV3Word(location int, isCol bool, timestamp int, tot int) []byte {
	var col byte
	if isCol {
		col = 0x80
	}
	b := []byte{
		0x04,
		col | byte(location&0x3F),
		byte(timestamp),
		byte(tot>>8) & 0x0F,
		byte(tot),
	}
	for i := range b {
		b[i] = bits.Reverse8(b[i])
	}
	return b
}

// HitToRecord converts h to a Record in domain.HitColumns order.
func HitToRecord(h domain.HitRecord) Record {
	return Record{
		IntValue(h.Readout),
		IntValue(h.ChipID),
		IntValue(h.Payload),
		IntValue(h.Location),
		IntValue(h.IsCol),
		IntValue(h.Timestamp),
		IntValue(h.ToTMSB),
		IntValue(h.ToTLSB),
		IntValue(h.ToTTotal),
		FloatValue(h.ToTMicros),
		FloatValue(h.HitTime),
	}
}

var _ Decoder = (*V3)(nil)
