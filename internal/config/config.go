package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	minBacklightPollMs      = 100
	maxBacklightPollMs      = 60000
	minRetentionDays        = 1
	maxRetentionDays        = 3650
	minCleanupIntervalHours = 1
	maxCleanupIntervalHours = 720
)

// Display sources understood by the agent.
const (
	SourceScreenSaver = "screensaver"
	SourceSleep       = "sleep"
	SourceBacklight   = "backlight"
)

var knownSources = map[string]bool{
	SourceScreenSaver: true,
	SourceSleep:       true,
	SourceBacklight:   true,
}

type Config struct {
	Storage      StorageConfig      `toml:"storage"`
	Battery      BatteryConfig      `toml:"battery"`
	Notification NotificationConfig `toml:"notification"`
	Display      DisplayConfig      `toml:"display"`
	Journal      JournalConfig      `toml:"journal"`
}

type StorageConfig struct {
	DBPath string `toml:"db_path"`
}

type BatteryConfig struct {
	// Supply names a directory under /sys/class/power_supply. Empty picks
	// the first BAT*.
	Supply string `toml:"supply"`
}

type NotificationConfig struct {
	AppName string `toml:"app_name"`
	Summary string `toml:"summary"`
	Icon    string `toml:"icon"`
}

type DisplayConfig struct {
	Sources         []string `toml:"sources"`
	BacklightPollMs int      `toml:"backlight_poll_ms"`
}

type JournalConfig struct {
	RetentionDays        int `toml:"retention_days"`
	CleanupIntervalHours int `toml:"cleanup_interval_hours"`
}

// DefaultPath returns $XDG_CONFIG_HOME/battery-status/config.toml.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		dir = filepath.Join(homeDir(), ".config")
	}
	return filepath.Join(dir, "battery-status", "config.toml")
}

func defaultDBPath() string {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		dir = filepath.Join(homeDir(), ".local", "state")
	}
	return filepath.Join(dir, "battery-status", "journal.db")
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return os.TempDir()
}

func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DBPath: defaultDBPath(),
		},
		Notification: NotificationConfig{
			AppName: "battery-status",
			Summary: "Battery",
			Icon:    "battery-symbolic",
		},
		Display: DisplayConfig{
			Sources:         []string{SourceScreenSaver, SourceSleep},
			BacklightPollMs: 1000,
		},
		Journal: JournalConfig{
			RetentionDays:        30,
			CleanupIntervalHours: 24,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return NormalizeAndValidate(cfg)
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return NormalizeAndValidate(DefaultConfig())
	}
	return cfg, err
}

func NormalizeAndValidate(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}

	sanitized := *cfg

	var err error
	sanitized.Storage.DBPath, err = sanitizePath("storage.db_path", sanitized.Storage.DBPath)
	if err != nil {
		return nil, err
	}

	sanitized.Battery.Supply = strings.TrimSpace(sanitized.Battery.Supply)
	if strings.ContainsAny(sanitized.Battery.Supply, `/\`) || sanitized.Battery.Supply == "." || sanitized.Battery.Supply == ".." {
		return nil, fmt.Errorf("battery.supply must be a plain name, got %q", cfg.Battery.Supply)
	}

	sanitized.Notification.AppName = strings.TrimSpace(sanitized.Notification.AppName)
	if sanitized.Notification.AppName == "" {
		return nil, fmt.Errorf("notification.app_name must not be empty")
	}

	sanitized.Display.Sources, err = sanitizeSources(sanitized.Display.Sources)
	if err != nil {
		return nil, err
	}
	if err := validateRange("display.backlight_poll_ms", sanitized.Display.BacklightPollMs, minBacklightPollMs, maxBacklightPollMs); err != nil {
		return nil, err
	}
	if err := validateRange("journal.retention_days", sanitized.Journal.RetentionDays, minRetentionDays, maxRetentionDays); err != nil {
		return nil, err
	}
	if err := validateRange("journal.cleanup_interval_hours", sanitized.Journal.CleanupIntervalHours, minCleanupIntervalHours, maxCleanupIntervalHours); err != nil {
		return nil, err
	}

	return &sanitized, nil
}

func Save(path string, cfg *Config) error {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return fmt.Errorf("config path must not be empty")
	}

	sanitized, err := NormalizeAndValidate(cfg)
	if err != nil {
		return err
	}

	var data bytes.Buffer
	if err := toml.NewEncoder(&data).Encode(sanitized); err != nil {
		return fmt.Errorf("encode config TOML: %w", err)
	}

	dir := filepath.Dir(trimmedPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data.Bytes()); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmpFile.Chmod(0o644); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, trimmedPath); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}
	tmpPath = ""

	return nil
}

func sanitizePath(name, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%s must not be empty", name)
	}
	cleaned := filepath.Clean(trimmed)
	if !filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("%s must be an absolute path, got %q", name, value)
	}
	return cleaned, nil
}

func sanitizeSources(sources []string) ([]string, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("display.sources must not be empty")
	}
	seen := make(map[string]bool)
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		s = strings.ToLower(strings.TrimSpace(s))
		if !knownSources[s] {
			return nil, fmt.Errorf("display.sources: unknown source %q", s)
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, nil
}

func validateRange(name string, value, min, max int) error {
	if value < min || value > max {
		return fmt.Errorf("%s must be between %d and %d, got %d", name, min, max, value)
	}

	return nil
}
