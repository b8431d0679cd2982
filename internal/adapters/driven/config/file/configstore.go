package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/tender-ingest/internal/core/ports/driven"
)

// FileName is the configuration file inside the config directory.
const FileName = "config.toml"

// Ensure ConfigStore implements the interface.
var _ driven.ConfigStore = (*ConfigStore)(nil)

// ConfigStore is a file-based implementation of driven.ConfigStore using TOML.
type ConfigStore struct {
	mu       sync.RWMutex
	filePath string
}

// NewConfigStore creates a TOML config store for the file in configDir.
// If configDir is empty, defaults to ~/.tender/config.toml.
func NewConfigStore(configDir string) (*ConfigStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		configDir = filepath.Join(home, ".tender")
	}
	return &ConfigStore{filePath: filepath.Join(configDir, FileName)}, nil
}

// NewConfigStoreAt creates a store for an explicit file path.
func NewConfigStoreAt(path string) *ConfigStore {
	return &ConfigStore{filePath: path}
}

// Load decodes the TOML file into v. Keys absent from the file leave the
// corresponding fields of v untouched; a missing file is not an error.
func (s *ConfigStore) Load(v any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	if err := toml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", s.filePath, err)
	}
	return nil
}

// Save encodes v as TOML and writes it with owner-only permissions.
func (s *ConfigStore) Save(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := toml.Marshal(v)
	if err != nil {
		return err
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o700); err != nil {
		return err
	}

	// Write with restricted permissions
	return os.WriteFile(s.filePath, data, 0o600)
}

// Exists reports whether the configuration file exists.
func (s *ConfigStore) Exists() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.filePath)
	return err == nil
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}
