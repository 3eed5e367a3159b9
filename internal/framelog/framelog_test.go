package framelog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bft-labs/pixdaq/internal/domain"
)

func TestWriter_AppendFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "20251118-110853.dat")

	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	frames := []domain.RawFrame{
		{Seq: 0, CapturedAt: time.Now(), Data: []byte{0x20, 0xBC, 0xFF}},
		{Seq: 1, CapturedAt: time.Now(), Data: []byte{0xAB}},
	}
	for _, f := range frames {
		if err := w.Append(f); err != nil {
			t.Fatalf("Append(%d) error = %v", f.Seq, err)
		}
	}

	// Each frame is durable before Close.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	want := "0\t20bcff\n1\tab\n"
	if string(data) != want {
		t.Errorf("log content = %q, want %q", data, want)
	}

	st := w.Stats()
	if st.Frames != 2 || st.Bytes != 4 || st.LastSeq != 1 {
		t.Errorf("Stats() = %+v, want 2 frames 4 bytes last 1", st)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := w.Append(domain.RawFrame{Seq: 2}); !errors.Is(err, domain.ErrFrameLog) {
		t.Errorf("Append after Close error = %v, want ErrFrameLog", err)
	}
}

func TestWriter_RejectsNonIncreasingSeq(t *testing.T) {
	w, err := Create(filepath.Join(t.TempDir(), "a.dat"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer w.Close()
	w.NoSync = true

	if err := w.Append(domain.RawFrame{Seq: 5, Data: []byte{1}}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	for _, seq := range []uint64{5, 4} {
		if err := w.Append(domain.RawFrame{Seq: seq, Data: []byte{1}}); !errors.Is(err, domain.ErrFrameLog) {
			t.Errorf("Append(seq=%d) error = %v, want ErrFrameLog", seq, err)
		}
	}
}

func TestScan(t *testing.T) {
	input := "0\t20bc\n\n1\tZZ\r\nb'abcd'\n  \n7\t\n"

	var got []Line
	err := Scan(strings.NewReader(input), func(l Line) error {
		got = append(got, l)
		return nil
	})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	want := []Line{
		{Index: 0, Seq: "0", Hex: "20bc"},
		{Index: 1, Seq: "1", Hex: "ZZ"},
		{Index: 2, Seq: "", Hex: "b'abcd'"},
		{Index: 3, Seq: "7", Hex: ""},
	}
	if len(got) != len(want) {
		t.Fatalf("Scan() returned %d lines, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestScan_StopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := Scan(strings.NewReader("0\taa\n1\tbb\n"), func(Line) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("Scan() error = %v, want stop", err)
	}
	if calls != 1 {
		t.Errorf("callback called %d times, want 1", calls)
	}
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.dat"))
	if !errors.Is(err, domain.ErrFrameLog) {
		t.Errorf("ReadFile() error = %v, want ErrFrameLog", err)
	}
}
