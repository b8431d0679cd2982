package driven

// ConfigStore persists the configuration file.
// Implementations handle the file format (e.g., TOML).
type ConfigStore interface {
	// Load decodes the stored configuration into v. Fields absent from the
	// file keep their current values. A missing file is not an error.
	Load(v any) error

	// Save encodes v and writes it to storage.
	Save(v any) error

	// Exists reports whether the configuration file exists.
	Exists() bool

	// Path returns the configuration file path.
	Path() string
}
