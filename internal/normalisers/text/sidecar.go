package text

import (
	"errors"
	"fmt"
	"os"
)

// LoadSidecar returns the cached normalised text at path.
// The second value is false when no artifact exists.
func LoadSidecar(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading sidecar: %w", err)
	}
	return string(data), true, nil
}

// SaveSidecar writes the normalised text artifact next to the source.
func SaveSidecar(path, s string) error {
	if err := os.WriteFile(path, []byte(s), 0o644); err != nil { //nolint:gosec // artifact is meant to be shared
		return fmt.Errorf("writing sidecar: %w", err)
	}
	return nil
}
