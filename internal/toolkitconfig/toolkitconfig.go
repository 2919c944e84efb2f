// Package toolkitconfig persists the CLI collaborator's user-level defaults
// (scan timeouts, profile directory, cache path, media server settings)
// between invocations, in a single YAML file under the OS config directory:
// a lazily-loaded global singleton, atomic write-then-rename on Save, and a
// version field guarding future schema changes.
package toolkitconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	appName        = "upnptoolkit"
	configFileName = "config.yaml"
	currentVersion = 1
)

// Config holds the CLI's persisted defaults, overridable per-invocation by
// flags. Fields cover the settings worth persisting across runs rather
// than re-specifying every time.
type Config struct {
	Version int `yaml:"version"`

	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Aggressive     bool   `yaml:"aggressive"`
	Network        string `yaml:"network,omitempty"`

	ProfileDir       string `yaml:"profile_dir,omitempty"`
	DeviceCachePath  string `yaml:"device_cache_path,omitempty"`
	CacheMaxAgeHours int    `yaml:"cache_max_age_hours"`

	MediaServerRoot string `yaml:"media_server_root,omitempty"`
	MediaServerAddr string `yaml:"media_server_addr"`

	Stealth bool `yaml:"stealth"`
	Verbose bool `yaml:"verbose"`
}

// Default returns the built-in defaults used when no config file exists
// (10s timeout, non-aggressive, 24h cache).
func Default() Config {
	return Config{
		Version:          currentVersion,
		TimeoutSeconds:   10,
		CacheMaxAgeHours: 24,
		MediaServerAddr:  ":8080",
	}
}

var (
	global     Config
	globalOnce sync.Once
	globalErr  error
	fileMutex  sync.Mutex
)

// Dir returns the configuration directory: $XDG_CONFIG_HOME/upnptoolkit
// when XDG_CONFIG_HOME is set, else ~/.config/upnptoolkit on every OS.
func Dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// Path returns the full path to the config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// Load loads the persisted config, returning Default() if no file exists
// yet. Subsequent calls return the same cached instance.
func Load() (Config, error) {
	globalOnce.Do(func() {
		global, globalErr = loadFromDisk()
	})
	return global, globalErr
}

func loadFromDisk() (Config, error) {
	path, err := Path()
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.Version != currentVersion {
		return Config{}, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, currentVersion)
	}
	return cfg, nil
}

// Save persists cfg to disk atomically (write to a temp file, then rename).
func Save(cfg Config) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if cfg.Version == 0 {
		cfg.Version = currentVersion
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	path, err := Path()
	if err != nil {
		return err
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("writing temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("saving config file: %w", err)
	}
	return nil
}
