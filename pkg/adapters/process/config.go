package process

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config describes one external command exposed to the model as a tool.
type Config struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
	// Parameters is the JSON Schema of the tool arguments. YAML files may
	// write it as a nested mapping.
	Parameters map[string]any `yaml:"parameters" json:"parameters"`
	Dir        string         `yaml:"dir" json:"dir"`
}

// File is the layout of a tools file.
type File struct {
	Tools []Config `yaml:"tools" json:"tools"`
}

// LoadTools reads a tools file (YAML, or JSON when the extension is .json).
// A missing file yields no tools.
func LoadTools(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read tools file: %w", err)
	}

	var f File
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		err = json.Unmarshal(data, &f)
	} else {
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse tools file %s: %w", path, err)
	}

	var out []Config
	seen := make(map[string]bool, len(f.Tools))
	for _, tool := range f.Tools {
		if tool.Name == "" {
			continue
		}
		if tool.Command == "" {
			return nil, fmt.Errorf("tool %q has no command", tool.Name)
		}
		if seen[tool.Name] {
			return nil, fmt.Errorf("tool %q declared twice", tool.Name)
		}
		seen[tool.Name] = true
		out = append(out, tool)
	}
	return out, nil
}
