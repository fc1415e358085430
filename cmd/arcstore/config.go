// Config loading for the arcstore CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/arcstore/internal/paths"
	"github.com/mesh-intelligence/arcstore/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"

	cfgKeyBackend     = "backend"
	cfgKeyDataDir     = "data_dir"
	cfgKeyLegacyPath  = "legacy_path"
	cfgKeyDefinitions = "definitions"
	cfgKeyLogLevel    = "log_level"

	defaultBackend  = types.BackendSQLite
	defaultLogLevel = "warn"
)

// defaultConfigYAML is the content written to config.yaml on first run.
const defaultConfigYAML = `# arcstore configuration

# Storage engine: sqlite or pebble
backend: sqlite

# Data directory (optional; overridable by --data-dir)
# data_dir:

# Legacy store to migrate from on first start (optional; overridable by --legacy-store)
# legacy_path:

# Reference definitions for statuses and headers: a file path or an http(s)
# URL. Empty uses the definitions built into the binary.
# definitions:

# debug, info, warn or error
log_level: warn
`

// loadConfig reads config.yaml from configDir, creating the directory and a
// default file on first run. A missing config.yaml is not an error.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, defaultBackend)
	v.SetDefault(cfgKeyLogLevel, defaultLogLevel)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix("ARCSTORE")
	if err := v.BindEnv(cfgKeyBackend); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, paths.ConfigFileName)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// storeConfig combines the flag values and v into the startup configuration.
func storeConfig(configDir string, v *viper.Viper) (types.Config, error) {
	dataDir, err := paths.ResolveDataDir(flagDataDir, v.GetString(cfgKeyDataDir))
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	legacyPath, err := paths.ResolveLegacyPath(flagLegacy, v.GetString(cfgKeyLegacyPath))
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve legacy path: %w", err)
	}
	level := flagLogLevel
	if level == "" {
		level = v.GetString(cfgKeyLogLevel)
	}
	cfg := types.Config{
		Backend:     v.GetString(cfgKeyBackend),
		DataDir:     dataDir,
		LegacyPath:  legacyPath,
		PrefsPath:   paths.PrefsPath(configDir),
		Definitions: v.GetString(cfgKeyDefinitions),
		LogLevel:    level,
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, fmt.Errorf("config %s: %w", filepath.Join(configDir, paths.ConfigFileName), err)
	}
	return cfg, nil
}
