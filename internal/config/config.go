// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`

	// Run gets its marching orders from CLI flags, not the config file.
	Run RunConfig `mapstructure:"-" yaml:"-"`
}

// LoggerConfig holds all the configuration for the logger.
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

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent       string   `mapstructure:"user_agent" yaml:"user_agent"`
	Args            []string `mapstructure:"args" yaml:"args"`
}

// NetworkConfig tunes navigation and page-settle behavior.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// LLMConfig defines the connection to the reasoning service.
type LLMConfig struct {
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`

	// RequestsPerMinute bounds the call rate against the API quota.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// AgentConfig holds orchestration settings.
type AgentConfig struct {
	// MaxSteps caps the number of plan steps the executor will attempt.
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`

	// LoginWait enables the bounded manual-login wait when no cookies are
	// available. Interactive credential entry itself stays out of scope; the
	// agent only polls for the logged-in state.
	LoginWait        bool          `mapstructure:"login_wait" yaml:"login_wait"`
	LoginWaitTimeout time.Duration `mapstructure:"login_wait_timeout" yaml:"login_wait_timeout"`

	// Screenshots enables task-page screenshot capture into the outdir.
	Screenshots bool `mapstructure:"screenshots" yaml:"screenshots"`

	// DOMSnapshotLimit trims the DOM snapshot sent to the reasoning service.
	DOMSnapshotLimit int `mapstructure:"dom_snapshot_limit" yaml:"dom_snapshot_limit"`
}

// RunConfig holds settings populated from CLI flags for a specific run.
type RunConfig struct {
	Task       string
	OutDir     string
	CookieFile string
	StartURL   string
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "taskpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")

	// -- Network --
	v.SetDefault("network.navigation_timeout", "90s")
	v.SetDefault("network.post_load_wait", "2s")

	// -- LLM --
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.api_timeout", "30s")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.top_p", 0.8)
	v.SetDefault("llm.top_k", 40)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.requests_per_minute", 30)

	// -- Agent --
	v.SetDefault("agent.max_steps", 20)
	v.SetDefault("agent.login_wait", false)
	v.SetDefault("agent.login_wait_timeout", "2m")
	v.SetDefault("agent.screenshots", true)
	v.SetDefault("agent.dom_snapshot_limit", 16000)
}

// NewFromViper creates a configuration instance from a viper object, binding
// sensitive values to environment variables.
func NewFromViper(v *viper.Viper) (*Config, error) {
	// GEMINI_API_KEY takes precedence over the config file, matching the
	// conventional environment variable for the service.
	_ = v.BindEnv("llm.api_key", "TASKPILOT_LLM_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("llm.model", "TASKPILOT_LLM_MODEL", "GEMINI_MODEL")
	_ = v.BindEnv("llm.endpoint", "TASKPILOT_LLM_ENDPOINT", "GEMINI_ENDPOINT")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Unreachable with defaults only.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures deep inside a run.
func (c *Config) Validate() error {
	if c.Network.NavigationTimeout < 0 {
		return fmt.Errorf("network.navigation_timeout must not be negative")
	}
	if c.LLM.APITimeout <= 0 {
		return fmt.Errorf("llm.api_timeout must be positive")
	}
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be positive")
	}
	if c.Agent.DOMSnapshotLimit <= 0 {
		return fmt.Errorf("agent.dom_snapshot_limit must be positive")
	}
	return nil
}
