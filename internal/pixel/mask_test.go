package pixel

import (
	"errors"
	"testing"

	"github.com/bft-labs/pixdaq/internal/domain"
)

func TestDefault(t *testing.T) {
	p := Default()
	if got, want := len(p.Enabled), (Size-FirstEnabled)*Size; got != want {
		t.Errorf("len(Enabled) = %d, want %d", got, want)
	}
	if len(p.Injected) != 0 {
		t.Errorf("len(Injected) = %d, want 0", len(p.Injected))
	}
	for _, px := range p.Enabled {
		if px.Col < FirstEnabled {
			t.Fatalf("column %d should be masked", px.Col)
		}
	}
}

func TestWithInjection(t *testing.T) {
	tests := []struct {
		name        string
		target      Target
		wantCount int
		wantFirst domain.Pixel
		wantLast  domain.Pixel
	}{
		{"single pixel", Target{Col: 10, Row: 4}, 1, domain.Pixel{Col: 10, Row: 4}, domain.Pixel{Col: 10, Row: 4}},
		{"row scan", Target{Col: -1, Row: 7}, 32, domain.Pixel{Col: 3, Row: 7}, domain.Pixel{Col: 34, Row: 7}},
		{"column scan", Target{Col: 5, Row: -1}, 35, domain.Pixel{Col: 5, Row: 0}, domain.Pixel{Col: 5, Row: 34}},
		{"diagonal", Target{Col: -1, Row: -1}, 35, domain.Pixel{Col: 0, Row: 0}, domain.Pixel{Col: 34, Row: 34}},
		{"masked column is enabled", Target{Col: 1, Row: 2}, 1, domain.Pixel{Col: 1, Row: 2}, domain.Pixel{Col: 1, Row: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := WithInjection(tt.target)
			if err != nil {
				t.Fatalf("WithInjection() error = %v", err)
			}
			if len(p.Injected) != tt.wantCount {
				t.Fatalf("len(Injected) = %d, want %d", len(p.Injected), tt.wantCount)
			}
			if p.Injected[0] != tt.wantFirst || p.Injected[len(p.Injected)-1] != tt.wantLast {
				t.Errorf("Injected = %v..%v, want %v..%v", p.Injected[0], p.Injected[len(p.Injected)-1], tt.wantFirst, tt.wantLast)
			}
			if len(p.Enabled) != len(p.Injected) {
				t.Errorf("len(Enabled) = %d, want only the %d injected pixels", len(p.Enabled), len(p.Injected))
			}
			for i := range p.Injected {
				if p.Enabled[i] != p.Injected[i] {
					t.Fatalf("Enabled[%d] = %v, want %v", i, p.Enabled[i], p.Injected[i])
				}
			}
		})
	}
}

func TestWithInjection_OutOfRange(t *testing.T) {
	if _, err := WithInjection(Target{Col: 35, Row: 0}); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
}
