package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/pixdaq/internal/adapters/fs"
	logAdapter "github.com/bft-labs/pixdaq/internal/adapters/log"
	"github.com/bft-labs/pixdaq/internal/clock"
	"github.com/bft-labs/pixdaq/internal/decode"
	"github.com/bft-labs/pixdaq/internal/domain"
	"github.com/bft-labs/pixdaq/internal/run"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
	fail  int
	done  chan string
}

func newRecorder() *recorder {
	return &recorder{done: make(chan string, 16)}
}

func (r *recorder) decode(ctx context.Context, n run.Names, s domain.RunStatus) error {
	r.mu.Lock()
	r.calls = append(r.calls, filepath.Base(n.Prefix))
	if r.fail > 0 {
		r.fail--
		r.mu.Unlock()
		return errors.New("transient")
	}
	r.mu.Unlock()
	if err := os.WriteFile(n.CSV, []byte("x\n"), 0o644); err != nil {
		return err
	}
	r.done <- filepath.Base(n.Prefix)
	return nil
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.calls...)
}

func writeRun(t *testing.T, dir, name string, status domain.RunStatus) string {
	t.Helper()
	prefix := filepath.Join(dir, name)
	if err := os.WriteFile(prefix+".dat", []byte("0\t20a1500026\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	status.Prefix = prefix
	if err := fs.NewStatusFile(prefix).Save(context.Background(), status); err != nil {
		t.Fatal(err)
	}
	return prefix
}

func testWatcher(dir string, fn DecodeFunc) *Watcher {
	return New(Config{Dir: dir, DebounceDelay: 10 * time.Millisecond, MaxAttempts: 3, RetryInitial: time.Millisecond, RetryMax: 2 * time.Millisecond},
		fn, logAdapter.NewNoopLogger())
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	writeRun(t, dir, "done", domain.RunStatus{Phase: domain.PhaseDone, Acquired: true})
	writeRun(t, dir, "failed", domain.RunStatus{Phase: domain.PhaseFailed, Acquired: true})
	writeRun(t, dir, "acquiring", domain.RunStatus{Phase: domain.PhaseAcquiring})
	writeRun(t, dir, "decoding", domain.RunStatus{Phase: domain.PhaseDecoding, Acquired: true})
	decoded := writeRun(t, dir, "decoded", domain.RunStatus{Phase: domain.PhaseDone, Acquired: true})
	future := time.Now().Add(time.Hour)
	if err := os.WriteFile(decoded+".csv", []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(decoded+".csv", future, future); err != nil {
		t.Fatal(err)
	}

	rec := newRecorder()
	w := testWatcher(dir, rec.decode)
	n, err := w.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if n != 2 {
		t.Errorf("Scan() = %d, want 2", n)
	}
	if got := strings.Join(rec.Calls(), ","); got != "done,failed" {
		t.Errorf("decoded %s, want done,failed", got)
	}

	if n, _ := w.Scan(context.Background()); n != 0 {
		t.Errorf("second Scan() = %d, want 0", n)
	}
}

func TestScan_Retries(t *testing.T) {
	dir := t.TempDir()
	writeRun(t, dir, "run", domain.RunStatus{Phase: domain.PhaseDone, Acquired: true})

	rec := newRecorder()
	rec.fail = 2
	n, err := testWatcher(dir, rec.decode).Scan(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("Scan() = %d, %v", n, err)
	}
	if len(rec.Calls()) != 3 {
		t.Errorf("attempts = %d, want 3", len(rec.Calls()))
	}
}

func TestScan_GivesUp(t *testing.T) {
	dir := t.TempDir()
	writeRun(t, dir, "run", domain.RunStatus{Phase: domain.PhaseDone, Acquired: true})

	rec := newRecorder()
	rec.fail = 10
	w := testWatcher(dir, rec.decode)
	if n, _ := w.Scan(context.Background()); n != 0 {
		t.Fatalf("Scan() = %d, want 0", n)
	}
	if len(rec.Calls()) != 3 {
		t.Errorf("attempts = %d, want 3", len(rec.Calls()))
	}
	w.Scan(context.Background())
	if len(rec.Calls()) != 3 {
		t.Errorf("retried a run that was given up")
	}
}

func TestRun_DecodesNewRuns(t *testing.T) {
	dir := t.TempDir()
	writeRun(t, dir, "existing", domain.RunStatus{Phase: domain.PhaseDone, Acquired: true})

	rec := newRecorder()
	w := testWatcher(dir, rec.decode)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	waitFor(t, rec.done, "existing")

	prefix := writeRun(t, dir, "fresh", domain.RunStatus{Phase: domain.PhaseAcquiring})
	time.Sleep(50 * time.Millisecond)
	if err := fs.NewStatusFile(prefix).Save(context.Background(), domain.RunStatus{Prefix: prefix, Phase: domain.PhaseDone, Acquired: true}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, rec.done, "fresh")

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_WithRunDecode(t *testing.T) {
	dir := t.TempDir()
	prefix := writeRun(t, dir, "20260101-000000", domain.RunStatus{Phase: domain.PhaseDone, Acquired: true})

	dec := decode.NewV3(clock.NewMock(time.Unix(0, 0)))
	fn := func(ctx context.Context, n run.Names, s domain.RunStatus) error {
		_, err := run.Decode(ctx, n, dec, run.DecodeOptions{}, logAdapter.NewNoopLogger())
		return err
	}
	if n, err := testWatcher(dir, fn).Scan(context.Background()); err != nil || n != 1 {
		t.Fatalf("Scan() = %d, %v", n, err)
	}
	data, err := os.ReadFile(prefix + ".csv")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "20260101-000000.dat,readout") {
		t.Errorf("csv = %q", data)
	}
}

func waitFor(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestProcess_SkipsRunBeingDecoded(t *testing.T) {
	dir := t.TempDir()
	prefix := writeRun(t, dir, "run", domain.RunStatus{Phase: domain.PhaseDone, Acquired: true})

	var (
		mu      sync.Mutex
		calls   int
		started = make(chan struct{})
		release = make(chan struct{})
	)
	fn := func(ctx context.Context, n run.Names, s domain.RunStatus) error {
		mu.Lock()
		calls++
		mu.Unlock()
		close(started)
		<-release
		return nil
	}
	w := testWatcher(dir, fn)

	errc := make(chan error, 1)
	go func() {
		_, err := w.process(context.Background(), prefix)
		errc <- err
	}()
	<-started

	decoded, err := w.process(context.Background(), prefix)
	if err != nil || decoded {
		t.Errorf("concurrent process() = %v, %v, want false, nil", decoded, err)
	}

	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("first process(): %v", err)
	}
	if decoded, _ := w.process(context.Background(), prefix); decoded {
		t.Error("process() after decode = true, want false")
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("decode calls = %d, want 1", calls)
	}
}
