package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the main OpenSession configuration
type Config struct {
	Storage     StorageConfig     `json:"storage" mapstructure:"storage"`
	Ingress     IngressConfig     `json:"ingress" mapstructure:"ingress"`
	Metrics     MetricsConfig     `json:"metrics" mapstructure:"metrics"`
	Maintenance MaintenanceConfig `json:"maintenance" mapstructure:"maintenance"`
	Log         LogConfig         `json:"log" mapstructure:"log"`
}

// StorageConfig configures the history store
type StorageConfig struct {
	Path        string `json:"path" mapstructure:"path"`
	MaxMessages int    `json:"max_messages" mapstructure:"max_messages"`
}

// IngressConfig configures the websocket event channel
type IngressConfig struct {
	Addr         string `json:"addr" mapstructure:"addr"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// MaintenanceConfig configures the retention sweeper
type MaintenanceConfig struct {
	Schedule      string `json:"schedule" mapstructure:"schedule"`
	RetentionDays int    `json:"retention_days" mapstructure:"retention_days"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	File   string `json:"file" mapstructure:"file"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".opensession")

	return &Config{
		Storage: StorageConfig{
			Path:        filepath.Join(base, "history.db"),
			MaxMessages: 500,
		},
		Ingress: IngressConfig{
			Addr: "127.0.0.1:7621",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "127.0.0.1:7622",
		},
		Maintenance: MaintenanceConfig{
			Schedule:      "0 3 * * *",
			RetentionDays: 30,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}

// Validate checks the configuration for mistakes that would only surface at
// runtime.
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Storage.MaxMessages <= 0 {
		return fmt.Errorf("storage.max_messages must be positive, got %d", c.Storage.MaxMessages)
	}
	if c.Ingress.Addr == "" {
		return fmt.Errorf("ingress.addr is required")
	}
	if c.Maintenance.RetentionDays <= 0 {
		return fmt.Errorf("maintenance.retention_days must be positive, got %d", c.Maintenance.RetentionDays)
	}
	return nil
}
