package cliconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChipConfigExt is appended to chip configuration names without an extension.
const ChipConfigExt = ".yml"

// ResolveChipConfig returns the file path for a chip configuration name.
// A bare name like "testconfig_v3" resolves to testconfig_v3.yml.
func ResolveChipConfig(name string) string {
	if name == "" || filepath.Ext(name) != "" {
		return name
	}
	return name + ChipConfigExt
}

// LoadChipConfig reads chip register settings from a YAML file. An empty
// path or a missing default file yields no settings.
func LoadChipConfig(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && strings.TrimSuffix(filepath.Base(path), ChipConfigExt) == DefaultChipConfigTag {
			return nil, nil
		}
		return nil, fmt.Errorf("read chip config %s: %w", path, err)
	}
	var regs map[string]any
	if err := yaml.Unmarshal(b, &regs); err != nil {
		return nil, fmt.Errorf("parse chip config %s: %w", path, err)
	}
	return regs, nil
}
