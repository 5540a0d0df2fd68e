package config

import (
	"os"
	"path/filepath"
)

// AppName names the per-user configuration and state directories.
const AppName = "ibus-afrim"

// Paths follow the XDG Base Directory Specification, which is what
// ibus-daemon itself uses.

// PlatformConfigDir returns $XDG_CONFIG_HOME/ibus-afrim, or
// ~/.config/ibus-afrim.
func PlatformConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, AppName)
	}
	return filepath.Join(homeDir(), ".config", AppName)
}

// PlatformDataDir returns $XDG_DATA_HOME/ibus-afrim, or
// ~/.local/share/ibus-afrim. Compiled dictionaries go here.
func PlatformDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, AppName)
	}
	return filepath.Join(homeDir(), ".local", "share", AppName)
}

// PlatformStateDir returns $XDG_STATE_HOME/ibus-afrim, or
// ~/.local/state/ibus-afrim. Log files go here.
func PlatformStateDir() string {
	if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
		return filepath.Join(xdgState, AppName)
	}
	return filepath.Join(homeDir(), ".local", "state", AppName)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return home
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{
		"toml",
		"json",
		"yaml",
		"yml",
	}
}

// FindConfigFile searches for a config file in standard locations.
// Returns the path to the first found config file, or empty string if none found.
func FindConfigFile() string {
	// Search order:
	// 1. Current directory
	// 2. Config directory
	searchDirs := []string{
		".",
		PlatformConfigDir(),
	}

	for _, dir := range searchDirs {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	return ""
}
