package types

import "errors"

// Config holds engine selection and the locations arcstore reads at startup.
type Config struct {
	Backend     string `json:"backend" yaml:"backend"`
	DataDir     string `json:"data_dir" yaml:"data_dir"`
	LegacyPath  string `json:"legacy_path" yaml:"legacy_path"`
	PrefsPath   string `json:"prefs_path" yaml:"prefs_path"`
	Definitions string `json:"definitions" yaml:"definitions"`
	LogLevel    string `json:"log_level" yaml:"log_level"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
)

// Config validation errors.
var (
	ErrBackendEmpty   = errors.New("backend must not be empty")
	ErrBackendUnknown = errors.New("unknown backend")
	ErrLogLevel       = errors.New("unknown log level")
)

var knownBackends = map[string]bool{
	BackendSQLite: true,
	BackendPebble: true,
}

var knownLogLevels = map[string]bool{
	"":      true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure. Empty paths are valid here; the startup
// context fills them from the data directory.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if !knownLogLevels[c.LogLevel] {
		return ErrLogLevel
	}
	return nil
}
