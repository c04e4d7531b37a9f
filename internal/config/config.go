// Package config handles tak's minimal on-disk repo configuration,
// .tak/config.json, per spec.md §6. It is intentionally small: a version
// marker is the only field the core itself reads.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/steveyegge/tak/internal/errs"
)

// CurrentVersion is written into new config files.
const CurrentVersion = 1

// Config is the shape of .tak/config.json.
type Config struct {
	Version int `json:"version"`
}

func path(takDir string) string { return filepath.Join(takDir, "config.json") }

// Load reads .tak/config.json, returning a default Config{Version: 0} if the
// file does not exist (callers treat that as "needs migration").
func Load(takDir string) (Config, error) {
	data, err := os.ReadFile(path(takDir))
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, errs.Wrap(errs.IOError, err, "read config").WithPath(path(takDir))
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, errs.Wrap(errs.CorruptJSON, err, "parse config").WithPath(path(takDir))
	}
	return c, nil
}

// Save writes c to .tak/config.json.
func Save(takDir string, c Config) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errs.Wrap(errs.Internal, err, "marshal config")
	}
	if err := os.WriteFile(path(takDir), data, 0o644); err != nil {
		return errs.Wrap(errs.IOError, err, "write config").WithPath(path(takDir))
	}
	return nil
}

// Init writes a fresh config at CurrentVersion if none exists; a no-op if one
// is already present.
func Init(takDir string) error {
	if _, err := os.Stat(path(takDir)); err == nil {
		return nil
	}
	return Save(takDir, Config{Version: CurrentVersion})
}
