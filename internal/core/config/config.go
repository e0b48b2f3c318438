package config

import (
	"time"

	redisclient "github.com/vietddude/llmrelay/internal/infra/redis"
	"github.com/vietddude/llmrelay/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	LLM      LLMConfig          `yaml:"llm"`
	Fallback FallbackConfig     `yaml:"fallback"`
	Queue    QueueConfig        `yaml:"queue"`
	Quality  QualityConfig      `yaml:"quality"`
	Health   HealthConfig       `yaml:"health"`
	Canned   []CannedRule       `yaml:"canned_responses"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP status server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// LLMConfig holds settings for the inference service.
type LLMConfig struct {
	URL            string        `yaml:"url"             mapstructure:"url"`
	Model          string        `yaml:"model"           mapstructure:"model"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	WarningGrace   time.Duration `yaml:"warning_grace"   mapstructure:"warning_grace"`
	MaxRetries     int           `yaml:"max_retries"     mapstructure:"max_retries"`
}

// FallbackConfig controls the connection strategy chain used to bypass
// cross-origin style blocking between the relay and the service.
type FallbackConfig struct {
	ForceProxy    bool     `yaml:"force_proxy"    mapstructure:"force_proxy"`
	ProxyURL      string   `yaml:"proxy_url"      mapstructure:"proxy_url"`
	PublicProxies []string `yaml:"public_proxies" mapstructure:"public_proxies"`
	Production    bool     `yaml:"production"     mapstructure:"production"`
}

// QueueConfig bounds the deferred-request queue.
type QueueConfig struct {
	Capacity      int           `yaml:"capacity"       mapstructure:"capacity"`
	DrainInterval time.Duration `yaml:"drain_interval" mapstructure:"drain_interval"`
}

// QualityConfig tunes the response-time quality tracker.
type QualityConfig struct {
	WindowSize        int           `yaml:"window_size"         mapstructure:"window_size"`
	SlowThreshold     time.Duration `yaml:"slow_threshold"      mapstructure:"slow_threshold"`
	VerySlowThreshold time.Duration `yaml:"very_slow_threshold" mapstructure:"very_slow_threshold"`
}

// HealthConfig controls periodic reachability probing.
// A negative CheckInterval disables periodic probing; manual probes remain.
type HealthConfig struct {
	CheckInterval time.Duration `yaml:"check_interval" mapstructure:"check_interval"`
	InitialDelay  time.Duration `yaml:"initial_delay"  mapstructure:"initial_delay"`
}

// CannedRule maps prompt keywords to a canned reply used when every
// recovery avenue for a connection-class failure is exhausted. The rule
// content is collaborator-supplied data.
type CannedRule struct {
	Keywords []string `yaml:"keywords" mapstructure:"keywords"`
	Reply    string   `yaml:"reply"    mapstructure:"reply"`
}
