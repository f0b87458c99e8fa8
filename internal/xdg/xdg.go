// Package xdg provides helpers to resolve XDG Base Directory paths for idkeeper.
// It implements the XDG Base Directory specification for determining appropriate
// locations for configuration files and the encrypted keyring file backend on
// hosts that have no OS secret service.
//
// Every directory returned here is created with private permissions because it
// may hold data that identifies the logged-in account.
package xdg

import (
	"os"
	"path/filepath"
)

// AppName is the directory name used under every XDG base directory.
const AppName = "idkeeper"

// ConfigDir returns the XDG config directory for idkeeper.
// The directory is created with private permissions (0700) if missing.
// It falls back to ~/.config/idkeeper when XDG_CONFIG_HOME is unset.
func ConfigDir() (string, error) {
	return resolve("XDG_CONFIG_HOME", ".config")
}

// DataDir returns the XDG data directory for idkeeper.
// It falls back to ~/.local/share/idkeeper when XDG_DATA_HOME is unset.
func DataDir() (string, error) {
	return resolve("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// StateDir returns the XDG state directory for idkeeper.
// It falls back to ~/.local/state/idkeeper when XDG_STATE_HOME is unset.
func StateDir() (string, error) {
	return resolve("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

func resolve(env, homeRelative string) (string, error) {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, homeRelative)
	}
	dir := filepath.Join(base, AppName)
	if err := os.MkdirAll(dir, 0o700); err != nil { // private dir
		return "", err
	}
	return dir, nil
}
