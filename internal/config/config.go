// Package config loads daemon configuration from file, environment, and
// defaults, in that order of preference.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type NtfyConfig struct {
	Topic   string `mapstructure:"topic"`
	BaseURL string `mapstructure:"base_url"`
}

type DatadogConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	AgentAddr string   `mapstructure:"agent_addr"`
	Namespace string   `mapstructure:"namespace"`
	Tags      []string `mapstructure:"tags"`
}

type DemoConfig struct {
	Listen string `mapstructure:"listen"`
}

type Config struct {
	ServerURL      string        `mapstructure:"server_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	ScanTimeout    time.Duration `mapstructure:"scan_timeout"`
	JournalPath    string        `mapstructure:"journal_path"`
	LogLevel       string        `mapstructure:"log_level"`
	LogFile        string        `mapstructure:"log_file"`

	Ntfy    NtfyConfig    `mapstructure:"ntfy"`
	Datadog DatadogConfig `mapstructure:"datadog"`
	Demo    DemoConfig    `mapstructure:"demo"`
}

// Load reads configuration from the given file, or searches the usual
// locations when path is empty. Environment variables prefixed AQUADECK_
// override file values.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server_url", "http://127.0.0.1:8000")
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("poll_interval", "30s")
	v.SetDefault("scan_timeout", "5s")
	v.SetDefault("journal_path", "aquadeck.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("ntfy.topic", "")
	v.SetDefault("ntfy.base_url", "https://ntfy.sh")
	v.SetDefault("datadog.enabled", false)
	v.SetDefault("datadog.agent_addr", "127.0.0.1:8125")
	v.SetDefault("datadog.namespace", "aquadeck")
	v.SetDefault("datadog.tags", []string{})
	v.SetDefault("demo.listen", "127.0.0.1:8000")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("aquadeck")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/aquadeck")
		v.AddConfigPath("/etc/aquadeck")
	}

	v.SetEnvPrefix("AQUADECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad is Load for main functions that cannot continue without one.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}
	return cfg
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var problems []string

	if c.ServerURL == "" {
		problems = append(problems, "server_url is required")
	} else if u, err := url.Parse(c.ServerURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, "server_url must be an absolute http(s) URL")
	}
	if c.RequestTimeout <= 0 {
		problems = append(problems, "request_timeout must be positive")
	}
	if c.PollInterval < time.Second {
		problems = append(problems, "poll_interval must be at least 1s")
	}
	if c.ScanTimeout < time.Second || c.ScanTimeout > time.Minute {
		problems = append(problems, "scan_timeout must be between 1s and 1m")
	}
	if c.JournalPath == "" {
		problems = append(problems, "journal_path is required")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, fmt.Sprintf("log_level %q is not a valid level", c.LogLevel))
	}
	if c.Datadog.Enabled && c.Datadog.AgentAddr == "" {
		problems = append(problems, "datadog.agent_addr is required when datadog is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ZerologLevel converts the validated log level string.
func (c *Config) ZerologLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
