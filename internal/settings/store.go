// Package settings persists the note template configuration as JSON.
package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"

	"github.com/starford/litlink/internal/notetemplate"
)

// Store reads and writes the template settings file.
type Store struct {
	path string
}

// NewStore returns a store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the settings file location.
func (s *Store) Path() string { return s.path }

// Load overlays the saved settings onto e. A missing file leaves e at its
// defaults. Comments and trailing commas are accepted.
func (s *Store) Load(e *notetemplate.Engine) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return e.CompileAll()
		}
		return fmt.Errorf("settings: read %s: %w", s.path, err)
	}
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("settings: parse %s: %w", s.path, err)
	}
	if err := e.UpdateFromJSON(standardized); err != nil {
		return fmt.Errorf("settings: apply %s: %w", s.path, err)
	}
	return nil
}

// Save writes the current settings of e atomically.
func (s *Store) Save(e *notetemplate.Engine) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("settings: mkdir: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("settings: write %s: %w", s.path, err)
	}
	return nil
}
