// Package pixel plans which pixels are enabled and injected for a run.
package pixel

import (
	"fmt"

	"github.com/bft-labs/pixdaq/internal/domain"
)

// Matrix geometry.
const (
	Size         = 35
	FirstEnabled = 3
)

// Target selects injected pixels. A negative Col or Row scans that axis:
// Row only scans every enabled column at that row, Col only scans every row
// of that column, and both negative selects the diagonal.
type Target struct {
	Col int
	Row int
}

// String formats the target as "col,row".
func (t Target) String() string {
	return fmt.Sprintf("%d,%d", t.Col, t.Row)
}

// Plan is the pixel configuration for a run.
type Plan struct {
	Enabled  []domain.Pixel
	Injected []domain.Pixel
}

// Default enables columns FirstEnabled..Size-1 across all rows.
func Default() Plan {
	var p Plan
	for c := FirstEnabled; c < Size; c++ {
		for r := 0; r < Size; r++ {
			p.Enabled = append(p.Enabled, domain.Pixel{Col: c, Row: r})
		}
	}
	return p
}

// WithInjection returns a plan enabling and injecting only the target's
// pixels. Every other pixel is masked.
func WithInjection(t Target) (Plan, error) {
	if t.Col >= Size || t.Row >= Size {
		return Plan{}, fmt.Errorf("%w: injection target %s outside %dx%d matrix", domain.ErrInvalidConfig, t, Size, Size)
	}

	var p Plan
	switch {
	case t.Col >= 0 && t.Row >= 0:
		p.Injected = []domain.Pixel{{Col: t.Col, Row: t.Row}}
	case t.Col < 0 && t.Row >= 0:
		for c := FirstEnabled; c < Size; c++ {
			p.Injected = append(p.Injected, domain.Pixel{Col: c, Row: t.Row})
		}
	case t.Col >= 0 && t.Row < 0:
		for r := 0; r < Size; r++ {
			p.Injected = append(p.Injected, domain.Pixel{Col: t.Col, Row: r})
		}
	default:
		for d := 0; d < Size; d++ {
			p.Injected = append(p.Injected, domain.Pixel{Col: d, Row: d})
		}
	}
	p.Enabled = append([]domain.Pixel(nil), p.Injected...)
	return p, nil
}
