package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ksred/claude-session-manager/internal/domain"
)

// Config holds the file-backed tunables.
type Config struct {
	// ActivityWindow bounds the live activity feed entry count.
	ActivityWindow int `yaml:"activity_window"`

	// SubscriberBuffer is the per-viewer broadcast queue depth.
	SubscriberBuffer int `yaml:"subscriber_buffer"`

	// DeliveryTimeoutSecs bounds delivery to a single viewer before it is
	// treated as disconnected.
	DeliveryTimeoutSecs int `yaml:"delivery_timeout_secs"`

	// IdleAfterSecs is the inactivity window before a working session is
	// marked idle. Zero disables the sweeper.
	IdleAfterSecs int `yaml:"idle_after_secs"`

	// Pricing overrides or extends the built-in per-model rates.
	Pricing map[string]domain.ModelPricing `yaml:"pricing"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ActivityWindow:      200,
		SubscriberBuffer:    64,
		DeliveryTimeoutSecs: 30,
		IdleAfterSecs:       300,
	}
}

// Load reads the config from a YAML file, falling back to defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromDefaultPath attempts to load config from standard locations:
// CSM_CONFIG, the working directory, ~/.config/claude-session-manager/,
// then XDG_CONFIG_HOME.
func LoadFromDefaultPath() (*Config, error) {
	if path := Env().ConfigFile; path != "" {
		return Load(path)
	}

	candidates := []string{
		"csm.yaml",
		filepath.Join(os.Getenv("HOME"), ".config", "claude-session-manager", "config.yaml"),
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "claude-session-manager", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(filepath.Clean(path)); err == nil {
			return Load(path)
		}
	}
	return DefaultConfig(), nil
}

// PricingTable returns the built-in rates overlaid with any file entries.
func (c *Config) PricingTable() domain.PricingTable {
	table := domain.DefaultPricing()
	if len(c.Pricing) > 0 {
		table = table.Merge(domain.PricingTable(c.Pricing))
	}
	return table
}

// DeliveryTimeout returns the per-viewer delivery deadline.
func (c *Config) DeliveryTimeout() time.Duration {
	return time.Duration(c.DeliveryTimeoutSecs) * time.Second
}

// IdleAfter returns the inactivity window before sessions go idle.
func (c *Config) IdleAfter() time.Duration {
	return time.Duration(c.IdleAfterSecs) * time.Second
}

// global config instance
var globalConfig *Config

// Global returns the global config instance, loading it if necessary.
func Global() *Config {
	if globalConfig == nil {
		cfg, err := LoadFromDefaultPath()
		if err != nil {
			cfg = DefaultConfig()
		}
		globalConfig = cfg
	}
	return globalConfig
}

// SetGlobal sets the global config instance (useful for testing).
func SetGlobal(cfg *Config) {
	globalConfig = cfg
}
