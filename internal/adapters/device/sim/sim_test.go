package sim

import (
	"context"
	"testing"
	"time"

	logAdapter "github.com/bft-labs/pixdaq/internal/adapters/log"
	"github.com/bft-labs/pixdaq/internal/clock"
	"github.com/bft-labs/pixdaq/internal/decode"
	"github.com/bft-labs/pixdaq/internal/domain"
	"github.com/bft-labs/pixdaq/internal/idle"
	"github.com/bft-labs/pixdaq/internal/match"
	"github.com/bft-labs/pixdaq/internal/ports"
)

func TestSession_BurstDecodesToPixels(t *testing.T) {
	ctx := context.Background()
	s := New(Config{Seed: 7, BurstRate: 1, MaxHitsPerBurst: 3, IdleReads: 2}, logAdapter.NewNoopLogger())

	hits, err := s.HitsPresent(ctx)
	if err != nil || !hits {
		t.Fatalf("HitsPresent() = %v, %v", hits, err)
	}
	buf, err := s.ReadBuffer(ctx, 64)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) != 64 {
		t.Fatalf("len = %d, want 64", len(buf))
	}
	if idle.IsIdle(buf, idle.DefaultThresholds()) {
		t.Fatal("burst read classified idle")
	}

	dec := decode.NewV3(clock.NewMock(time.Unix(0, 0)))
	recs, err := dec.DecodeHits(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) == 0 || len(recs)%2 != 0 {
		t.Fatalf("decoded %d words, want a non-zero even count", len(recs))
	}
	px := match.Pixels(recs, match.DefaultCuts())
	if len(px) != len(recs)/2 {
		t.Errorf("matched %d pixels from %d words", len(px), len(recs))
	}
	for _, p := range px {
		if p.Col < 3 || p.Col >= 35 || p.Row < 0 || p.Row >= 35 {
			t.Errorf("pixel out of matrix: %+v", p)
		}
	}
}

func TestSession_IdleAfterBurst(t *testing.T) {
	ctx := context.Background()
	s := New(Config{Seed: 1, BurstRate: 1, MaxHitsPerBurst: 1, IdleReads: 2}, logAdapter.NewNoopLogger())

	s.HitsPresent(ctx)
	s.ReadBuffer(ctx, 64)

	for i := 0; i < 2; i++ {
		if hits, _ := s.HitsPresent(ctx); hits {
			t.Fatalf("poll %d signalled hits during idle gap", i)
		}
		buf, _ := s.ReadBuffer(ctx, 48)
		if !idle.IsIdle(buf, idle.DefaultThresholds()) {
			t.Fatalf("read %d not idle", i)
		}
	}
	if hits, _ := s.HitsPresent(ctx); !hits {
		t.Fatal("no burst after idle gap")
	}
	if s.Bursts() != 2 {
		t.Errorf("Bursts() = %d, want 2", s.Bursts())
	}
}

func TestSession_Deterministic(t *testing.T) {
	ctx := context.Background()
	run := func() []byte {
		s := New(DefaultConfig(), logAdapter.NewNoopLogger())
		var out []byte
		for i := 0; i < 200; i++ {
			if hits, _ := s.HitsPresent(ctx); hits {
				b, _ := s.ReadBuffer(ctx, 48)
				out = append(out, b...)
			}
		}
		return out
	}
	a, b := run(), run()
	if string(a) != string(b) {
		t.Fatal("same seed produced different streams")
	}
}

func TestSession_ConfigureAndInjection(t *testing.T) {
	ctx := context.Background()
	s := New(Config{Seed: 3, BurstRate: 0, MaxHitsPerBurst: 8}, logAdapter.NewNoopLogger())

	err := s.Configure(ctx, ports.DeviceConfig{Enabled: []domain.Pixel{{Col: 10, Row: 0}}})
	if err != nil {
		t.Fatal(err)
	}
	if hits, _ := s.HitsPresent(ctx); hits {
		t.Fatal("zero burst rate signalled hits")
	}

	if err := s.StartInjection(ctx, ports.DefaultInjectionConfig(300)); err != nil {
		t.Fatal(err)
	}
	if hits, _ := s.HitsPresent(ctx); !hits {
		t.Fatal("injection did not trigger a burst")
	}
	buf, _ := s.ReadBuffer(ctx, 128)
	recs, _ := decode.NewV3(nil).DecodeHits(buf, 0)
	for _, r := range recs {
		if r.IsColumn() && r.Location != 10 {
			t.Errorf("hit in masked column %d", r.Location)
		}
	}
	if err := s.StopInjection(ctx); err != nil {
		t.Fatal(err)
	}
	if got := s.Injections(); len(got) != 1 || got[0].VoltageMV != 300 {
		t.Errorf("Injections() = %+v", got)
	}
}
