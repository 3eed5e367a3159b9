package table

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// WriteCSV writes t with a leading row-position column headed by t.Name.
// Missing values are written as empty fields.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(t.Columns)+1)
	header = append(header, t.Name)
	header = append(header, t.Columns...)
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(t.Columns)+1)
	for i, row := range t.Rows {
		record[0] = strconv.Itoa(i)
		for j := range t.Columns {
			record[j+1] = ""
			if j < len(row.Values) {
				record[j+1] = row.Values[j].String()
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes t to path atomically.
func WriteCSVFile(path string, t *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(f)
	if err := WriteCSV(bw, t); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, path)
}
