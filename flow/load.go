package flow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a flow document from a .json, .yaml or .yml file and validates it.
// A flow without a name is named after the file.
func Load(path string) (Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Flow{}, fmt.Errorf("failed to read flow file: %w", err)
	}

	var f Flow
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return Flow{}, fmt.Errorf("failed to parse flow yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &f); err != nil {
			return Flow{}, fmt.Errorf("failed to parse flow json: %w", err)
		}
	}

	if f.Name == "" {
		f.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := f.Validate(); err != nil {
		return Flow{}, fmt.Errorf("flow %s: %w", f.Name, err)
	}
	return f, nil
}
