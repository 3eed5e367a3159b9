package run

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bft-labs/pixdaq/internal/adapters/device/replay"
	"github.com/bft-labs/pixdaq/internal/adapters/fs"
	"github.com/bft-labs/pixdaq/internal/clock"
	"github.com/bft-labs/pixdaq/internal/decode"
	"github.com/bft-labs/pixdaq/internal/domain"
	"github.com/bft-labs/pixdaq/internal/framelog"
	"github.com/bft-labs/pixdaq/internal/match"
	"github.com/bft-labs/pixdaq/internal/pixel"
	"github.com/bft-labs/pixdaq/internal/ports"
)

// pixelFrame encodes one column/row pair padded to 48 bytes of idle fill.
func pixelFrame(col, row, ts, tot int) []byte {
	f := append(decode.EncodeV3Word(col, true, ts, tot), decode.EncodeV3Word(row, false, ts, tot+1)...)
	return append(f, bytes.Repeat([]byte{0xBC}, 48-len(f))...)
}

// fakeDevice adds configuration and injection to a replay session.
type fakeDevice struct {
	*replay.Session

	mu           sync.Mutex
	configured   []ports.DeviceConfig
	configureErr error
	injecting    bool
	injections   int
	closed       bool
}

func newFakeDevice(frames ...[]byte) *fakeDevice {
	return &fakeDevice{Session: replay.New(frames, mockLogger{})}
}

func (d *fakeDevice) Configure(ctx context.Context, cfg ports.DeviceConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configured = append(d.configured, cfg)
	return d.configureErr
}

func (d *fakeDevice) StartInjection(ctx context.Context, cfg ports.InjectionConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.injecting = true
	d.injections++
	return nil
}

func (d *fakeDevice) StopInjection(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.injecting = false
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return d.Session.Close()
}

// memSink records what a run stores.
type memSink struct {
	mu     sync.Mutex
	runs   []domain.RunStatus
	hits   map[string]int
	pixels map[string]int
}

func newMemSink() *memSink {
	return &memSink{hits: map[string]int{}, pixels: map[string]int{}}
}

func (s *memSink) RecordRun(ctx context.Context, st domain.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, st)
	return nil
}

func (s *memSink) SaveHits(ctx context.Context, runID string, hits []domain.HitRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits[runID] = len(hits)
	return nil
}

func (s *memSink) SavePixels(ctx context.Context, runID string, pixels []match.PixelHit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pixels[runID] = len(pixels)
	return nil
}

func testConfig() Config {
	loop := domain.DefaultRunConfig()
	loop.Duration = time.Second
	return Config{Loop: loop, ThresholdMV: 150, Device: "fake", SaveCSV: true}
}

func testClock() *clock.Mock {
	c := clock.NewMock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c.Step = time.Millisecond
	return c
}

func TestRunner_AcquireAndDecode(t *testing.T) {
	dir := t.TempDir()
	names := NewNames(dir, "test", "chip", false, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	dev := newFakeDevice(pixelFrame(5, 7, 10, 100), pixelFrame(6, 8, 20, 200), pixelFrame(7, 9, 30, 300))
	sink := newMemSink()

	cfg := testConfig()
	cfg.Decode = DecodeOptions{Match: true, Sink: sink}
	rec := &phaseRecorder{}

	r, err := New(cfg, names, dev, mockLogger{}, WithClock(testClock()), WithRunID("run-1"), WithPhaseObserver(rec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if rep.Acquire.Reason != "deadline" || rep.Acquire.Frames != 3 {
		t.Errorf("acquire = %+v, want 3 frames until deadline", rep.Acquire)
	}
	if rep.Decode == nil || rep.Decode.Rows != 6 || rep.Decode.Pixels != 3 {
		t.Fatalf("decode = %+v, want 6 rows and 3 pixels", rep.Decode)
	}
	if !dev.closed {
		t.Error("device not closed")
	}
	if len(dev.configured) != 1 || len(dev.configured[0].Enabled) != 32*35 || len(dev.configured[0].Injected) != 0 {
		t.Errorf("configure calls = %d", len(dev.configured))
	}

	lines, err := framelog.ReadFile(names.Dat)
	if err != nil || len(lines) != 3 {
		t.Fatalf("frame log lines = %d, %v", len(lines), err)
	}
	csv, err := os.ReadFile(names.CSV)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(csv), "20260101-000000_test.dat,readout,chipID") {
		t.Errorf("csv header = %q", strings.SplitN(string(csv), "\n", 2)[0])
	}
	if _, err := os.Stat(names.Pixels); err != nil {
		t.Errorf("pixels csv: %v", err)
	}

	st, err := fs.NewStatusFile(names.Prefix).Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Phase != domain.PhaseDone || !st.Acquired || st.FramesWritten != 3 || st.LastSeq == nil || *st.LastSeq != 2 {
		t.Errorf("status = %+v", st)
	}
	if st.RunID != "run-1" || st.EndedAt.IsZero() {
		t.Errorf("status = %+v", st)
	}

	wantPhases := []string{"configuring", "acquiring", "decoding", "done"}
	if got := rec.Phases(); strings.Join(got, ",") != strings.Join(wantPhases, ",") {
		t.Errorf("phases = %v, want %v", got, wantPhases)
	}
	if sink.hits["run-1"] != 6 || sink.pixels["run-1"] != 3 {
		t.Errorf("sink hits = %d, pixels = %d", sink.hits["run-1"], sink.pixels["run-1"])
	}
	if len(sink.runs) != 4 || sink.runs[3].Phase != domain.PhaseDone {
		t.Errorf("sink runs = %d", len(sink.runs))
	}

	var dump ConfigDump
	data, err := os.ReadFile(names.Config)
	if err != nil {
		t.Fatal(err)
	}
	if err := yaml.Unmarshal(data, &dump); err != nil {
		t.Fatal(err)
	}
	if dump.RunID != "run-1" || dump.Loop.ReadSize != 48 || dump.EnabledPixels != 32*35 {
		t.Errorf("config dump = %+v", dump)
	}
}

func TestRunner_WithoutCSV(t *testing.T) {
	names := NewNames(t.TempDir(), "", "", false, time.Now())
	cfg := testConfig()
	cfg.SaveCSV = false

	r, err := New(cfg, names, newFakeDevice(pixelFrame(5, 7, 10, 100)), mockLogger{}, WithClock(testClock()))
	if err != nil {
		t.Fatal(err)
	}
	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Decode != nil {
		t.Error("decode ran without SaveCSV")
	}
	if _, err := os.Stat(names.CSV); !os.IsNotExist(err) {
		t.Errorf("csv exists: %v", err)
	}
	if rep.Status.Phase != domain.PhaseDone || rep.Status.RunID == "" {
		t.Errorf("status = %+v", rep.Status)
	}
}

func TestRunner_Injection(t *testing.T) {
	names := NewNames(t.TempDir(), "", "", true, time.Now())
	if !strings.HasSuffix(names.Prefix, "_inj") {
		t.Fatalf("prefix = %s", names.Prefix)
	}
	dev := newFakeDevice(pixelFrame(10, 4, 1, 50))

	cfg := testConfig()
	cfg.Injection = &pixel.Target{Col: 10, Row: 4}
	cfg.InjectionVoltageMV = 300

	r, err := New(cfg, names, dev, mockLogger{}, WithClock(testClock()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if dev.injections != 1 || dev.injecting {
		t.Errorf("injections = %d, still injecting = %v", dev.injections, dev.injecting)
	}
	if got := dev.configured[0].Injected; len(got) != 1 || got[0] != (domain.Pixel{Col: 10, Row: 4}) {
		t.Errorf("injected pixels = %v", got)
	}
}

func TestRunner_InjectionUnsupported(t *testing.T) {
	names := NewNames(t.TempDir(), "", "", true, time.Now())
	cfg := testConfig()
	cfg.Injection = &pixel.Target{Col: 10, Row: 4}

	r, err := New(cfg, names, replay.New(nil, mockLogger{}), mockLogger{}, WithClock(testClock()))
	if err != nil {
		t.Fatal(err)
	}
	rep, err := r.Run(context.Background())
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("Run() error = %v, want ErrInvalidConfig", err)
	}
	if rep.Status.Phase != domain.PhaseFailed || rep.Status.Acquired {
		t.Errorf("status = %+v, want failed before acquisition", rep.Status)
	}
}

func TestRunner_ConfigureFailure(t *testing.T) {
	names := NewNames(t.TempDir(), "", "", false, time.Now())
	dev := newFakeDevice()
	dev.configureErr = errors.New("spi timeout")

	r, err := New(testConfig(), names, dev, mockLogger{}, WithClock(testClock()))
	if err != nil {
		t.Fatal(err)
	}
	rep, err := r.Run(context.Background())
	if !errors.Is(err, domain.ErrDevice) {
		t.Fatalf("Run() error = %v, want ErrDevice", err)
	}
	if rep.Status.Phase != domain.PhaseFailed || rep.Status.Acquired || rep.Status.Complete() {
		t.Errorf("status = %+v", rep.Status)
	}
	if !dev.closed {
		t.Error("device not closed after failure")
	}
	if _, err := os.Stat(names.Dat); !os.IsNotExist(err) {
		t.Errorf("frame log created despite failed configuration: %v", err)
	}
}

func TestRunner_CancelledStillDecodes(t *testing.T) {
	names := NewNames(t.TempDir(), "", "", false, time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := New(testConfig(), names, newFakeDevice(pixelFrame(5, 7, 10, 100)), mockLogger{}, WithClock(testClock()))
	if err != nil {
		t.Fatal(err)
	}
	rep, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Acquire.Reason != "interrupted" {
		t.Errorf("reason = %s, want interrupted", rep.Acquire.Reason)
	}
	if rep.Decode == nil {
		t.Fatal("decode skipped after cancellation")
	}
	if rep.Status.Phase != domain.PhaseDone || !rep.Status.Complete() {
		t.Errorf("status = %+v", rep.Status)
	}
}

func TestNew_Validation(t *testing.T) {
	cfg := testConfig()
	cfg.Loop.ReadSize = 0
	if _, err := New(cfg, Names{}, newFakeDevice(), mockLogger{}); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("bad loop config: error = %v", err)
	}
	if _, err := New(testConfig(), Names{}, nil, mockLogger{}); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("nil device: error = %v", err)
	}
}
