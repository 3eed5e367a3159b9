package framelog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bft-labs/pixdaq/internal/domain"
)

// maxLineBytes bounds a single log line.
const maxLineBytes = 4 << 20

// Line is one non-blank line of a frame log.
type Line struct {
	// Index is the 0-based position among non-blank lines.
	Index int

	// Seq is the text before the first tab, or "" if the line has none.
	Seq string

	// Hex is the frame field, not yet validated.
	Hex string
}

// Scan calls fn for every non-blank line of r, in order.
func Scan(r io.Reader, fn func(Line) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineBytes)

	idx := 0
	for sc.Scan() {
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		line := Line{Index: idx}
		if seq, rest, ok := strings.Cut(text, "\t"); ok {
			line.Seq = strings.TrimSpace(seq)
			line.Hex = rest
		} else {
			line.Hex = text
		}
		if err := fn(line); err != nil {
			return err
		}
		idx++
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrFrameLog, err)
	}
	return nil
}

// ReadFile reads all lines of the log at path.
func ReadFile(path string) ([]Line, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFrameLog, err)
	}
	defer f.Close()

	var lines []Line
	err = Scan(f, func(l Line) error {
		lines = append(lines, l)
		return nil
	})
	return lines, err
}
