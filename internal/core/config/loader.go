package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills in zero values with sensible defaults.
func (cfg *AppConfig) ApplyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.LLM.URL == "" {
		// Explicit IPv4 avoids IPv6 localhost resolution issues.
		cfg.LLM.URL = "http://127.0.0.1:11434"
	}
	if cfg.LLM.RequestTimeout == 0 {
		cfg.LLM.RequestTimeout = 30 * time.Second
	}
	if cfg.LLM.WarningGrace == 0 {
		cfg.LLM.WarningGrace = 5 * time.Second
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}
	if cfg.Queue.Capacity == 0 {
		cfg.Queue.Capacity = 10
	}
	if cfg.Queue.DrainInterval == 0 {
		cfg.Queue.DrainInterval = 1 * time.Second
	}
	if cfg.Quality.WindowSize == 0 {
		cfg.Quality.WindowSize = 5
	}
	if cfg.Quality.SlowThreshold == 0 {
		cfg.Quality.SlowThreshold = 5 * time.Second
	}
	if cfg.Quality.VerySlowThreshold == 0 {
		cfg.Quality.VerySlowThreshold = 10 * time.Second
	}
	// Zero means unset here; disabling periodic probing takes an explicit
	// negative interval.
	if cfg.Health.CheckInterval == 0 {
		cfg.Health.CheckInterval = 30 * time.Second
	}
	if cfg.Health.InitialDelay == 0 {
		cfg.Health.InitialDelay = 500 * time.Millisecond
	}
	if len(cfg.Fallback.PublicProxies) == 0 && !cfg.Fallback.Production {
		cfg.Fallback.PublicProxies = []string{
			"https://corsproxy.io/?",
			"https://api.allorigins.win/raw?url=",
		}
	}
}
