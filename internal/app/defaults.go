package app

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// ConfigPathEnv overrides the config file location.
	ConfigPathEnv = "BK_CONFIG_PATH"
	// HomeEnv overrides the base directory for bk data.
	HomeEnv = "BK_HOME"
)

// Defaults holds the default locations used when no flag overrides them.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// GetDefaults resolves the default paths. BK_CONFIG_PATH and BK_HOME take
// precedence over ~/.config/bk.toml and ~/.local/share/bk.
func GetDefaults() (Defaults, error) {
	configPath := os.Getenv(ConfigPathEnv)
	baseDir := os.Getenv(HomeEnv)

	if configPath == "" || baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return Defaults{}, fmt.Errorf("cannot determine home directory: %w", err)
		}
		if configPath == "" {
			configPath = filepath.Join(homeDir, ".config", "bk.toml")
		}
		if baseDir == "" {
			baseDir = filepath.Join(homeDir, ".local", "share", "bk")
		}
	}

	return Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}
