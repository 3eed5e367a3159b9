// Package framelog persists accepted readout frames as an append-only text
// log and reads it back for decoding.
//
// Each line is "<seq>\t<lowercase hex>\n". The writer flushes and syncs after
// every frame so a crash loses at most the frame being written.
package framelog

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/bft-labs/pixdaq/internal/domain"
	"github.com/bft-labs/pixdaq/internal/ports"
)

// Stats summarises what a Writer has persisted.
type Stats struct {
	Frames  uint64
	Bytes   uint64
	LastSeq uint64
}

// Writer appends frames to a log file.
type Writer struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	buf    *bufio.Writer
	stats  Stats
	closed bool

	// NoSync skips fsync after each frame. Flushing still happens.
	NoSync bool
}

// Create opens path for appending, creating parent directories as needed.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFrameLog, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFrameLog, err)
	}
	return &Writer{path: path, file: f, buf: bufio.NewWriterSize(f, 64<<10)}, nil
}

// Append writes one frame and makes it durable. Sequence numbers must be
// strictly increasing.
func (w *Writer) Append(frame domain.RawFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("%w: append to closed log", domain.ErrFrameLog)
	}
	if w.stats.Frames > 0 && frame.Seq <= w.stats.LastSeq {
		return fmt.Errorf("%w: sequence %d not after %d", domain.ErrFrameLog, frame.Seq, w.stats.LastSeq)
	}

	line := make([]byte, 0, 24+2*len(frame.Data))
	line = strconv.AppendUint(line, frame.Seq, 10)
	line = append(line, '\t')
	line = hex.AppendEncode(line, frame.Data)
	line = append(line, '\n')

	if _, err := w.buf.Write(line); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrFrameLog, err)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrFrameLog, err)
	}
	if !w.NoSync {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrFrameLog, err)
		}
	}

	w.stats.Frames++
	w.stats.Bytes += uint64(len(frame.Data))
	w.stats.LastSeq = frame.Seq
	return nil
}

// Stats returns the counts written so far.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Path returns the log file path.
func (w *Writer) Path() string {
	return w.path
}

// Close flushes and closes the file. It is safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	if flushErr != nil {
		return fmt.Errorf("%w: %v", domain.ErrFrameLog, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: %v", domain.ErrFrameLog, closeErr)
	}
	return nil
}

var _ ports.FrameWriter = (*Writer)(nil)
