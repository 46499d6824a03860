// Package config provides configuration management for the unzipbot CLI.
package config

import (
	"os"
	"path/filepath"
)

const appName = "unzipbot"

// Dir returns the unzipbot config directory.
// Uses XDG_CONFIG_HOME/unzipbot, defaulting to ~/.config/unzipbot.
func Dir() (string, error) {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns the unzipbot data directory holding settings, the user
// database and extracted files.
// Uses XDG_DATA_HOME/unzipbot, defaulting to ~/.local/share/unzipbot.
func DataDir() (string, error) {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// CacheDir returns the unzipbot cache directory used for downloads.
// Uses XDG_CACHE_HOME/unzipbot, defaulting to ~/.cache/unzipbot.
func CacheDir() (string, error) {
	return xdgDir("XDG_CACHE_HOME", ".cache")
}

func xdgDir(env, fallback string) (string, error) {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, fallback)
	}
	return filepath.Join(base, appName), nil
}
