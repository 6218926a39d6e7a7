package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// dataFilePath resolves the preference store's persistence path:
// $XDG_DATA_HOME/wluma/data if XDG_DATA_HOME is set, else
// $HOME/.local/share/wluma/data.
func dataFilePath() (string, error) {
	var base string
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		base = v
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("persistence: resolving home directory: %w", err)
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "wluma", "data"), nil
}

// ensureDataDir creates path's parent directory with mode 0700
// (idempotently) so store.save()'s own O_CREATE|O_SYNC open always
// lands in an existing directory.
func ensureDataDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("persistence: creating data directory: %w", err)
	}
	return nil
}
