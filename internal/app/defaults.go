package app

import (
	"fmt"
	"os"
	"path/filepath"

	"docsign/internal/config"
)

// Environment variables that override the default locations.
const (
	EnvConfigPath = "DOCSIGN_CONFIG_PATH"
	EnvHome       = "DOCSIGN_HOME"
)

// Defaults holds the default file locations of an installation.
type Defaults struct {
	ConfigPath string // ~/.config/docsign.toml
	BaseDir    string // ~/.local/share/docsign
	LogDir     string
}

// GetDefaults returns application default paths, checking environment
// variables first.
func GetDefaults() (*Defaults, error) {
	configPath, err := envOrHome(EnvConfigPath, ".config", "docsign.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := envOrHome(EnvHome, ".local", "share", "docsign")
	if err != nil {
		return nil, err
	}
	return &Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}

// NewConfig returns a config rooted at the default base directory.
func (d *Defaults) NewConfig(instanceID string) *config.Config {
	return config.NewConfig(instanceID, d.BaseDir)
}

// LoadConfig reads the config file at the default path.
func (d *Defaults) LoadConfig() (*config.Config, error) {
	cfg, err := config.ReadFromFile(d.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config (run `docsign config init` first?): %w", err)
	}
	return cfg, nil
}

// envOrHome returns the environment variable's value, or the path under the
// user's home directory when it is unset.
func envOrHome(env string, elem ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elem...)...), nil
}
