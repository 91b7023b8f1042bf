package config

import (
	"errors"
	"os"
	"path/filepath"
)

// FileName is the configuration file looked up in default locations.
const FileName = "meditreat.yaml"

// EnvPath names the environment variable that points at the config file.
const EnvPath = "MEDITREAT_CONFIG"

// ErrNotFound is returned by Resolve when no candidate file exists.
var ErrNotFound = errors.New("config: no configuration file found")

// Resolve picks the configuration file: the explicit path, then
// $MEDITREAT_CONFIG, then ./meditreat.yaml, then the XDG config dir.
// Explicit paths are returned even when missing so Load reports the error.
func Resolve(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if p := os.Getenv(EnvPath); p != "" {
		return p, nil
	}
	for _, p := range []string{FileName, filepath.Join(ConfigDir(), FileName)} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ErrNotFound
}

// ConfigDir is $XDG_CONFIG_HOME/meditreat, falling back to ~/.config.
func ConfigDir() string {
	return filepath.Join(xdg("XDG_CONFIG_HOME", ".config"), "meditreat")
}

// DataDir is $XDG_DATA_HOME/meditreat, falling back to ~/.local/share.
func DataDir() string {
	return filepath.Join(xdg("XDG_DATA_HOME", filepath.Join(".local", "share")), "meditreat")
}

func xdg(env, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fallback
	}
	return filepath.Join(home, fallback)
}
