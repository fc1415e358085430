// Package paths resolves the configuration, data, and legacy store locations.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppDirName is the directory name used under platform config and data
// roots.
const AppDirName = "arcstore"

// Environment variable names for location overrides.
const (
	EnvConfigDir  = "ARCSTORE_CONFIG_DIR"
	EnvDataDir    = "ARCSTORE_DATA_DIR"
	EnvLegacyPath = "ARCSTORE_LEGACY_PATH"
)

// File names inside the config directory.
const (
	ConfigFileName = "config.yaml"
	PrefsFileName  = "prefs.yaml"
)

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
	goos          string
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
	goos:          runtime.GOOS,
}

// DefaultConfigDir returns the platform-specific default configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/arcstore (fallback ~/.config/arcstore)
// macOS:   ~/Library/Application Support/arcstore
// Windows: %APPDATA%/arcstore
func DefaultConfigDir() (string, error) {
	if platformDir.goos == "linux" {
		return xdgDir("XDG_CONFIG_HOME", ".config")
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppDirName), nil
}

// DefaultDataDir returns the platform-specific default data directory.
//
// Linux:   $XDG_DATA_HOME/arcstore (fallback ~/.local/share/arcstore)
// macOS and Windows: same as the config directory.
func DefaultDataDir() (string, error) {
	if platformDir.goos == "linux" {
		return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
	}
	return DefaultConfigDir()
}

func xdgDir(env, fallback string) (string, error) {
	if xdg := os.Getenv(env); xdg != "" {
		return filepath.Join(xdg, AppDirName), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, fallback, AppDirName), nil
}

// ResolveConfigDir returns the configuration directory following the precedence
// chain: flag > ARCSTORE_CONFIG_DIR env > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveDataDir returns the data directory following the precedence chain:
// flag > config.yaml value > ARCSTORE_DATA_DIR env > DefaultDataDir().
func ResolveDataDir(flag, configYAMLValue string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if configYAMLValue != "" {
		return filepath.Abs(configYAMLValue)
	}
	if env := os.Getenv(EnvDataDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultDataDir()
}

// ResolveLegacyPath returns the legacy store file: flag > config.yaml value >
// ARCSTORE_LEGACY_PATH env. An empty result means there is no legacy store.
func ResolveLegacyPath(flag, configYAMLValue string) (string, error) {
	for _, v := range []string{flag, configYAMLValue, os.Getenv(EnvLegacyPath)} {
		if v != "" {
			return filepath.Abs(v)
		}
	}
	return "", nil
}

// PrefsPath returns the preference file inside configDir.
func PrefsPath(configDir string) string {
	return filepath.Join(configDir, PrefsFileName)
}
