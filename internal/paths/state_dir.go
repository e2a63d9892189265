// Package paths locates vbook's per-user files: the runtime config and the
// state database remembering each project's runtime app address and last
// script inputs.
package paths

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const appDir = "vbook"

// StateBaseDir is the directory holding state.db. One database serves every
// project on the machine, keyed by project directory. $XDG_STATE_HOME wins,
// then ~/.local/state; $XDG_RUNTIME_DIR is used only without a home directory.
func StateBaseDir() (string, error) {
	if dir := envDir("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, appDir), nil
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".local", "state", appDir), nil
	}
	if dir := envDir("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appDir), nil
	}
	return "", errors.New("no home directory and no XDG_STATE_HOME or XDG_RUNTIME_DIR; pass --state-db")
}

// StateDBPath is the default for --state-db and the state_db config key.
func StateDBPath() (string, error) {
	base, err := StateBaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "state.db"), nil
}

// ConfigPath is where `vbook config init` writes and every command reads
// the runtime config.
func ConfigPath() (string, error) {
	if dir := envDir("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appDir, "config.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appDir, "config.yaml"), nil
}

func envDir(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}
