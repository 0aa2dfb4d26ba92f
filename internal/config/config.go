// Package config defines the viper-bound configuration surface for
// pagewatch: logging, the task database, the browser, the LLM router, the
// plan cache, and the monitoring/change-detection store.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Engine     EngineConfig     `mapstructure:"engine" yaml:"engine"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	LLM        LLMRouterConfig  `mapstructure:"llm" yaml:"llm"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache"`
	Monitoring MonitoringConfig `mapstructure:"monitoring" yaml:"monitoring"`
	Interactive InteractiveConfig `mapstructure:"interactive" yaml:"interactive"`
}

// ColorConfig defines the color codes used for each log level in console mode.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// LoggerConfig holds all the configuration for the zap-backed logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// DatabaseConfig holds the Postgres connection string. An empty URL means
// the plan cache is kept in memory and execution results and monitoring
// samples are not persisted.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// EngineConfig configures the `serve` worker pool.
type EngineConfig struct {
	QueueSize          int           `mapstructure:"queue_size" yaml:"queue_size"`
	WorkerConcurrency  int           `mapstructure:"worker_concurrency" yaml:"worker_concurrency"`
	DefaultTaskTimeout time.Duration `mapstructure:"default_task_timeout" yaml:"default_task_timeout"`
	PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// BrowserConfig holds settings for the chromedp-driven headless browser.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	DefaultTimeout  time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string `mapstructure:"args" yaml:"args"`
	ViewportWidth   int      `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight  int      `mapstructure:"viewport_height" yaml:"viewport_height"`
	UserAgent       string   `mapstructure:"user_agent" yaml:"user_agent"`
}

// LLMProvider names a supported chat-completion family.
type LLMProvider string

const (
	// ProviderOpenAI is the family-A ("openai-like") backend.
	ProviderOpenAI LLMProvider = "openai"
	// ProviderAnthropic is the family-B ("anthropic-like") backend.
	ProviderAnthropic LLMProvider = "anthropic"
)

// LLMModelConfig configures one concrete model endpoint.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// LLMRouterConfig configures the primary/fallback LLM pair used for
// PlanGenerator.GeneratePlanWithFallback and the interactive loop.
type LLMRouterConfig struct {
	Provider    LLMProvider               `mapstructure:"provider" yaml:"provider"`
	Primary     string                    `mapstructure:"primary" yaml:"primary"`
	Fallback    string                    `mapstructure:"fallback" yaml:"fallback"`
	Models      map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// CacheConfig configures the plan cache TTL.
type CacheConfig struct {
	TTLDays int `mapstructure:"ttl_days" yaml:"ttl_days"`
}

// MonitoringConfig configures change-detection behavior.
type MonitoringConfig struct {
	RestockField string `mapstructure:"restock_field" yaml:"restock_field"`
}

// InteractiveConfig configures the closed-loop InteractiveAgent.
type InteractiveConfig struct {
	MaxSteps          int     `mapstructure:"max_steps" yaml:"max_steps"`
	ProgressThreshold float64 `mapstructure:"progress_threshold" yaml:"progress_threshold"`
	StagnationLimit   int     `mapstructure:"stagnation_limit" yaml:"stagnation_limit"`
	ScreenshotsEnabled bool   `mapstructure:"screenshots_enabled" yaml:"screenshots_enabled"`
	DOMCaptureEnabled bool    `mapstructure:"dom_capture_enabled" yaml:"dom_capture_enabled"`
}

// NewDefaultConfig returns a Config populated with SetDefaults' values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "pagewatch")
	v.SetDefault("logger.log_file", "pagewatch.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Engine --
	v.SetDefault("engine.queue_size", 1000)
	v.SetDefault("engine.worker_concurrency", 4)
	v.SetDefault("engine.default_task_timeout", "60s")
	v.SetDefault("engine.poll_interval", "5s")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.default_timeout", "30s")
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport_width", 1366)
	v.SetDefault("browser.viewport_height", 768)

	// -- LLM --
	v.SetDefault("llm.provider", string(ProviderOpenAI))
	v.SetDefault("llm.primary", "primary")
	v.SetDefault("llm.fallback", "fallback")

	// -- Cache --
	v.SetDefault("cache.ttl_days", 7)

	// -- Monitoring --
	v.SetDefault("monitoring.restock_field", "roastingDate")

	// -- Interactive --
	v.SetDefault("interactive.max_steps", 10)
	v.SetDefault("interactive.progress_threshold", 0.10)
	v.SetDefault("interactive.stagnation_limit", 3)
	v.SetDefault("interactive.screenshots_enabled", true)
	v.SetDefault("interactive.dom_capture_enabled", true)
}

// NewConfigFromViper unmarshals and validates a populated viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Engine.WorkerConcurrency <= 0 {
		return fmt.Errorf("engine.worker_concurrency must be a positive integer")
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport dimensions must be positive")
	}
	if c.Cache.TTLDays <= 0 {
		return fmt.Errorf("cache.ttl_days must be a positive integer")
	}
	return nil
}

// InitializeViper binds env vars with the PAGEWATCH_ prefix, reads an
// optional config file, and applies defaults.
func InitializeViper(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PAGEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}
