package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/pixdaq/internal/ports"
)

func TestZerologAdapter_Fields(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewZerologAdapter(zerolog.New(&buf)).Component("acquire")

	adapter.Info("frame written",
		ports.Uint64("seq", 7),
		ports.Int("bytes", 48),
		ports.Duration("elapsed", time.Second),
		ports.Err(errors.New("boom")),
	)

	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if got["message"] != "frame written" {
		t.Errorf("message = %v, want frame written", got["message"])
	}
	if got["component"] != "acquire" {
		t.Errorf("component = %v, want acquire", got["component"])
	}
	if got["seq"] != float64(7) {
		t.Errorf("seq = %v, want 7", got["seq"])
	}
	if got["error"] != "boom" {
		t.Errorf("error = %v, want boom", got["error"])
	}
}

func TestZerologAdapter_DisabledLevel(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewZerologAdapter(zerolog.New(&buf).Level(zerolog.WarnLevel))

	adapter.Debug("hidden", ports.String("k", "v"))
	adapter.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected no output below warn, got %q", buf.String())
	}

	adapter.Warn("shown")
	if buf.Len() == 0 {
		t.Error("expected warn output")
	}
}
