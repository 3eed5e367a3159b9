package domain

// HitColumns is the column order of a decoded hit table.
var HitColumns = []string{
	"readout",
	"chipID",
	"payload",
	"location",
	"isCol",
	"timestamp",
	"tot_msb",
	"tot_lsb",
	"tot_total",
	"tot_us",
	"hittime",
}

// HitRecord is one decoded hit from a readout.
type HitRecord struct {
	Readout   int
	ChipID    int
	Payload   int
	Location  int
	IsCol     int
	Timestamp int
	ToTMSB    int
	ToTLSB    int
	ToTTotal  int

	// ToTMicros is the time over threshold in microseconds.
	ToTMicros float64

	// HitTime is the decode wall time in unix seconds.
	HitTime float64
}

// IsColumn reports whether the hit was reported by a column line.
func (h HitRecord) IsColumn() bool {
	return h.IsCol == 1
}
