// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	GitHub   GitHubConfig   `mapstructure:"github" yaml:"github"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Sandbox  SandboxConfig  `mapstructure:"sandbox" yaml:"sandbox"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port        int    `mapstructure:"port" yaml:"port"`
	FrontendURL string `mapstructure:"frontend_url" yaml:"frontend_url"`
}

// LoggerConfig holds the configuration for the logger. Rotation of the file
// log is a fixed policy owned by the observability package, not a setting.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
}

// GitHubConfig carries the token injected into clone and push URLs and used
// for the Actions API.
type GitHubConfig struct {
	Token string `mapstructure:"token" yaml:"-"`
}

// LLMConfig configures the Gemini fallback chain.
type LLMConfig struct {
	APIKey         string        `mapstructure:"api_key" yaml:"-"`
	Models         []string      `mapstructure:"models" yaml:"models"`
	Endpoint       string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout     time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature    float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
}

// SandboxConfig tunes the isolated test execution environment.
type SandboxConfig struct {
	DockerHost  string        `mapstructure:"docker_host" yaml:"docker_host"`
	Memory      string        `mapstructure:"memory" yaml:"memory"`
	MemorySwap  string        `mapstructure:"memory_swap" yaml:"memory_swap"`
	CPUs        string        `mapstructure:"cpus" yaml:"cpus"`
	ExecTimeout time.Duration `mapstructure:"exec_timeout" yaml:"exec_timeout"`
	WorkRoot    string        `mapstructure:"work_root" yaml:"work_root"`
}

// PipelineConfig bounds the heal loop and CI observation.
type PipelineConfig struct {
	RetryLimit     int           `mapstructure:"retry_limit" yaml:"retry_limit"`
	ResultsDir     string        `mapstructure:"results_dir" yaml:"results_dir"`
	CITimeout      time.Duration `mapstructure:"ci_timeout" yaml:"ci_timeout"`
	CIPollInterval time.Duration `mapstructure:"ci_poll_interval" yaml:"ci_poll_interval"`
	CISettleDelay  time.Duration `mapstructure:"ci_settle_delay" yaml:"ci_settle_delay"`
	GitAuthorName  string        `mapstructure:"git_author_name" yaml:"git_author_name"`
	GitAuthorEmail string        `mapstructure:"git_author_email" yaml:"git_author_email"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Server --
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.frontend_url", "")

	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "repomedic")
	v.SetDefault("logger.log_file", "repomedic.log")

	// -- LLM --
	v.SetDefault("llm.models", []string{"gemini-2.5-flash", "gemini-2.5-pro"})
	v.SetDefault("llm.api_timeout", "90s")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 8192)
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.initial_backoff", "15s")
	v.SetDefault("llm.max_backoff", "30s")

	// -- Sandbox --
	v.SetDefault("sandbox.memory", "512m")
	v.SetDefault("sandbox.memory_swap", "1g")
	v.SetDefault("sandbox.cpus", "2")
	v.SetDefault("sandbox.exec_timeout", "120s")
	v.SetDefault("sandbox.work_root", "tmp")

	// -- Pipeline --
	v.SetDefault("pipeline.retry_limit", 5)
	v.SetDefault("pipeline.results_dir", "results")
	v.SetDefault("pipeline.ci_timeout", "5m")
	v.SetDefault("pipeline.ci_poll_interval", "10s")
	v.SetDefault("pipeline.ci_settle_delay", "5s")
	v.SetDefault("pipeline.git_author_name", "repomedic-bot")
	v.SetDefault("pipeline.git_author_email", "bot@repomedic.dev")
}

// NewDefaultConfig creates a configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object,
// layering in the well-known environment variables.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	bindWellKnownEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	applyLegacyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// bindWellKnownEnv binds sensitive and deployment-specific values to their
// environment variables.
func bindWellKnownEnv(v *viper.Viper) {
	v.BindEnv("github.token", "GITHUB_TOKEN")
	v.BindEnv("llm.api_key", "GEMINI_API_KEY")
	v.BindEnv("sandbox.docker_host", "DOCKER_HOST")
	v.BindEnv("server.frontend_url", "FRONTEND_URL")
}

// applyLegacyEnv honors the bare PORT and RETRY_LIMIT variables used by
// existing deployments. Viper's env binding is keyed by config path, so these
// unprefixed numerics are read directly.
func applyLegacyEnv(cfg *Config) {
	if raw := os.Getenv("PORT"); raw != "" {
		if port, err := strconv.Atoi(raw); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
	if raw := os.Getenv("RETRY_LIMIT"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit >= 0 {
			cfg.Pipeline.RetryLimit = limit
		}
	}
}

// ConfigSearchPaths returns the directories scanned for a config file.
func ConfigSearchPaths() []string {
	paths := []string{"."}
	if home, err := homedir.Dir(); err == nil {
		paths = append(paths, home+"/.repomedic")
	}
	return paths
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0, 65535]")
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline configuration invalid: %w", err)
	}
	if c.Sandbox.ExecTimeout <= 0 {
		return fmt.Errorf("sandbox.exec_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the LLM chain settings.
func (l *LLMConfig) Validate() error {
	if len(l.Models) == 0 {
		return fmt.Errorf("at least one model must be configured")
	}
	if l.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be greater than 0")
	}
	if l.InitialBackoff <= 0 || l.MaxBackoff < l.InitialBackoff {
		return fmt.Errorf("backoff window must satisfy 0 < initial <= max")
	}
	return nil
}

// Validate checks the heal-loop bounds.
func (p *PipelineConfig) Validate() error {
	if p.RetryLimit < 0 {
		return fmt.Errorf("retry_limit must not be negative")
	}
	if p.CIPollInterval <= 0 {
		return fmt.Errorf("ci_poll_interval must be a positive duration")
	}
	if p.ResultsDir == "" {
		return fmt.Errorf("results_dir is required")
	}
	return nil
}
