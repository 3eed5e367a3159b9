// Package fs persists run status next to a run's output files.
package fs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/bft-labs/pixdaq/internal/domain"
)

// StatusSuffix is appended to a run prefix to name its status file.
const StatusSuffix = ".status.json"

// StatusFile implements ports.StatusRepository using a JSON file.
type StatusFile struct {
	path string
}

// NewStatusFile returns the status file for the run at prefix, where
// prefix is the output path without extension.
func NewStatusFile(prefix string) *StatusFile {
	return &StatusFile{path: prefix + StatusSuffix}
}

// PrefixOf returns the run prefix of a status file path, or "" if path
// is not a status file.
func PrefixOf(path string) string {
	if !strings.HasSuffix(path, StatusSuffix) {
		return ""
	}
	return strings.TrimSuffix(path, StatusSuffix)
}

// Load reads the status from disk.
// Returns an empty status and nil error if no status file exists.
func (f *StatusFile) Load(ctx context.Context) (domain.RunStatus, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.RunStatus{}, nil
		}
		return domain.RunStatus{}, err
	}

	var s domain.RunStatus
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.RunStatus{}, err
	}
	return s, nil
}

// Save writes the status to a temp file and renames it into place, so
// readers never see a partial file.
func (f *StatusFile) Save(ctx context.Context, s domain.RunStatus) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// Path returns the full path to the status file.
func (f *StatusFile) Path() string {
	return f.path
}
