package stage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SaveArtifact stores a named artifact under the stage's artifacts dir.
// Strings are written verbatim; everything else is marshaled to YAML.
// Subdirectories in name are created as needed.
func (s *Stage) SaveArtifact(name string, data any) error {
	path := filepath.Join(s.ArtifactsDir(), name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact dir: %w", err)
	}
	if text, ok := data.(string); ok {
		return writeAtomic(path, []byte(text))
	}
	return writeYAML(path, data)
}

// LoadArtifact reads a YAML artifact into out. Artifacts written by older
// runs may be JSON under a .json name; when the YAML file is absent the
// JSON twin is tried. Returns os.ErrNotExist when neither exists.
func (s *Stage) LoadArtifact(name string, out any) error {
	path := filepath.Join(s.ArtifactsDir(), name)
	err := readYAML(path, out)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return err
	}

	legacy := legacyJSONName(path)
	if legacy == "" {
		return err
	}
	data, readErr := os.ReadFile(legacy)
	if readErr != nil {
		return err
	}
	if jsonErr := json.Unmarshal(data, out); jsonErr != nil {
		return fmt.Errorf("failed to parse legacy artifact %s: %w", filepath.Base(legacy), jsonErr)
	}
	return nil
}

// LoadArtifactText reads an artifact as raw text. Returns os.ErrNotExist
// when it is missing.
func (s *Stage) LoadArtifactText(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.ArtifactsDir(), name))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// HasArtifact reports whether the named artifact (or its legacy JSON twin)
// exists.
func (s *Stage) HasArtifact(name string) bool {
	path := filepath.Join(s.ArtifactsDir(), name)
	if _, err := os.Stat(path); err == nil {
		return true
	}
	if legacy := legacyJSONName(path); legacy != "" {
		if _, err := os.Stat(legacy); err == nil {
			return true
		}
	}
	return false
}

func legacyJSONName(path string) string {
	ext := filepath.Ext(path)
	if ext != ".yaml" && ext != ".yml" {
		return ""
	}
	return strings.TrimSuffix(path, ext) + ".json"
}
