package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ExportConfig tunes the rate limit on the bulk CSV export endpoint.
type ExportConfig struct {
	// Requests allowed per window, per client IP.
	Requests int `yaml:"requests"`
	// WindowSeconds is the rate limit window in seconds.
	WindowSeconds int `yaml:"window_seconds"`
	// Burst is the bucket capacity.
	Burst int `yaml:"burst"`
}

// Window returns the rate limit window as a duration.
func (e *ExportConfig) Window() time.Duration {
	return time.Duration(e.WindowSeconds) * time.Second
}

// Config is the server configuration persisted as config.yaml in the data
// directory. CLI flags that were explicitly set take precedence.
type Config struct {
	HTTP       string       `yaml:"http"`
	DatasetDir string       `yaml:"dataset_dir"`
	LogLevel   string       `yaml:"log_level"`
	Export     ExportConfig `yaml:"export"`
}

// DefaultConfig returns the configuration used when no config.yaml exists.
func DefaultConfig() *Config {
	return &Config{
		HTTP:       "localhost:7480",
		DatasetDir: "./data",
		LogLevel:   "info",
		Export: ExportConfig{
			Requests:      10,
			WindowSeconds: 60,
			Burst:         3,
		},
	}
}

// LoadConfig reads config.yaml from dataDir, creating it with defaults if it
// does not exist.
func LoadConfig(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, "config.yaml")
	raw, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir flag, not user input
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg := DefaultConfig()
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, out, 0o644); err != nil { //nolint:gosec // G306: config is not a secret
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		return cfg, nil
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if cfg.Export.Requests <= 0 || cfg.Export.WindowSeconds <= 0 || cfg.Export.Burst <= 0 {
		return nil, fmt.Errorf("export rate limit values must be positive in %s", path)
	}
	return cfg, nil
}
