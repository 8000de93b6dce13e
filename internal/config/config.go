// Package config persists the global ck settings at
// ~/.config/ck/config.json. Env vars override the file, the file
// overrides defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Settings holds the cloud sync configuration. The engine owns the
// loaded instance; mutations go through an explicit save.
type Settings struct {
	Endpoint string `json:"endpoint"`
	AutoSync *bool  `json:"auto_sync,omitempty"` // nil = default true
	Debounce string `json:"debounce,omitempty"`  // duration string, default "2s"
}

// DefaultDebounce bounds write amplification under rapid interaction.
const DefaultDebounce = 2 * time.Second

const configFile = "config.json"

// Dir returns ~/.config/ck, creating it if necessary.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", "ck")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// StorePath returns the local store file location.
// Priority: CK_STORE env > ~/.config/ck/store.db.
func StorePath() (string, error) {
	if v := os.Getenv("CK_STORE"); v != "" {
		return v, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "store.db"), nil
}

// Load reads settings from config.json. A missing file is empty
// settings, not an error.
func Load() (*Settings, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, configFile))
	if err != nil {
		if os.IsNotExist(err) {
			return &Settings{}, nil
		}
		return nil, err
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configFile, err)
	}
	return &s, nil
}

// Save writes settings atomically (temp file + rename).
func Save(s *Settings) error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "config-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, filepath.Join(dir, configFile))
}

// EffectiveEndpoint returns the cloud endpoint.
// Priority: CK_SYNC_URL env > settings. Empty means not configured.
func (s *Settings) EffectiveEndpoint() string {
	if v := os.Getenv("CK_SYNC_URL"); v != "" {
		return v
	}
	return s.Endpoint
}

// AutoSyncEnabled reports whether mutations schedule a debounced sync.
// Priority: CK_SYNC_AUTO env > settings > true.
func (s *Settings) AutoSyncEnabled() bool {
	if v := parseBoolEnv("CK_SYNC_AUTO"); v != nil {
		return *v
	}
	if s.AutoSync != nil {
		return *s.AutoSync
	}
	return true
}

// DebounceInterval returns the quiet period before an auto sync fires.
// Priority: CK_SYNC_DEBOUNCE env > settings > 2s.
func (s *Settings) DebounceInterval() time.Duration {
	if v := os.Getenv("CK_SYNC_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	if s.Debounce != "" {
		if d, err := time.ParseDuration(s.Debounce); err == nil {
			return d
		}
	}
	return DefaultDebounce
}

// parseBoolEnv returns nil if env not set or unrecognized.
func parseBoolEnv(key string) *bool {
	v := strings.ToLower(os.Getenv(key))
	switch v {
	case "1", "true":
		b := true
		return &b
	case "0", "false":
		b := false
		return &b
	}
	return nil
}
