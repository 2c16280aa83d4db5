package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LevelFormat is the on-disk encoding of a level file
type LevelFormat string

const (
	FormatJSON LevelFormat = "json"
	FormatYAML LevelFormat = "yaml"
)

// FormatFromPath picks the encoding from a file extension
func FormatFromPath(path string) (LevelFormat, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	}
	return "", false
}

// IsLevelFile reports whether path has a level file extension
func IsLevelFile(path string) bool {
	_, ok := FormatFromPath(path)
	return ok
}

// DecodeLevel parses a level definition without validating it
func DecodeLevel(data []byte, format LevelFormat) (*LevelConfig, error) {
	var cfg LevelConfig
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported level format %q", format)
	}
	return &cfg, nil
}

// EncodeLevel renders a level definition
func EncodeLevel(cfg *LevelConfig, format LevelFormat) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(cfg, "", "  ")
	case FormatYAML:
		return yaml.Marshal(cfg)
	}
	return nil, fmt.Errorf("unsupported level format %q", format)
}

// LoadLevelFile reads, decodes and validates a level file
func LoadLevelFile(filename string) (*LevelConfig, error) {
	format, ok := FormatFromPath(filename)
	if !ok {
		return nil, fmt.Errorf("unsupported level file extension: %s", filename)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	cfg, err := DecodeLevel(data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse level file '%s': %w", filepath.Base(filename), err)
	}

	if err := ValidateLevel(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
