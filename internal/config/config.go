package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// Version is the current version of rodplus
	Version = "1"
	// AppName is the application name
	AppName = "rodplus"
	// EnvPrefix prefixes every environment override, e.g. RODPLUS_SERVER_PORT.
	EnvPrefix = "RODPLUS"
)

// Config holds all configuration options for the rodplus server
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Nats     NatsConfig     `mapstructure:"nats" yaml:"nats"`
	Queue    QueueConfig    `mapstructure:"queue" yaml:"queue"`
	Security SecurityConfig `mapstructure:"security" yaml:"security"`
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	// BaseURL prefixes URLs in responses; derived from host and port if empty.
	BaseURL     string `mapstructure:"base_url" yaml:"base_url"`
	MaxBodySize int    `mapstructure:"max_body_size" yaml:"max_body_size"`
}

// BrowserConfig configures the Chrome instance.
type BrowserConfig struct {
	Bin       string `mapstructure:"bin" yaml:"bin"`
	RemoteURL string `mapstructure:"remote_url" yaml:"remote_url"`
	Headless  bool   `mapstructure:"headless" yaml:"headless"`
	NoSandbox bool   `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	// Install downloads Chromium Revision when Bin is empty.
	Install  bool `mapstructure:"install" yaml:"install"`
	Revision int  `mapstructure:"revision" yaml:"revision"`
}

// NatsConfig configures the job queue transport.
type NatsConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	URL          string        `mapstructure:"url" yaml:"url"`
	StoreDir     string        `mapstructure:"store_dir" yaml:"store_dir"`
	Bin          string        `mapstructure:"bin" yaml:"bin"`
	StartTimeout time.Duration `mapstructure:"start_timeout" yaml:"start_timeout"`
}

// QueueConfig configures job bookkeeping.
type QueueConfig struct {
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
	WebhookTimeout  time.Duration `mapstructure:"webhook_timeout" yaml:"webhook_timeout"`
}

// SecurityConfig configures rate limiting and access control.
type SecurityConfig struct {
	RateLimitRequests int           `mapstructure:"rate_limit_requests" yaml:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window" yaml:"rate_limit_window"`
	RateLimitBurst    int           `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
	IdempotencyTTL    time.Duration `mapstructure:"idempotency_ttl" yaml:"idempotency_ttl"`
	AllowedIPs        []string      `mapstructure:"allowed_ips" yaml:"allowed_ips"`
}

// LoggerConfig configures zap.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	// LogFile, when set, receives JSON logs rotated by size.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// SetDefaults registers every default with v.
func SetDefaults(v *viper.Viper) {
	// -- Server --
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.base_url", "")
	v.SetDefault("server.max_body_size", 10*1024*1024)

	// -- Browser --
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.install", false)
	v.SetDefault("browser.revision", 0)

	// -- NATS --
	v.SetDefault("nats.enabled", true)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.store_dir", "./data/nats")
	v.SetDefault("nats.bin", "nats-server")
	v.SetDefault("nats.start_timeout", "10s")

	// -- Queue --
	v.SetDefault("queue.cleanup_interval", "1h")
	v.SetDefault("queue.webhook_timeout", "30s")

	// -- Security --
	v.SetDefault("security.rate_limit_requests", 100)
	v.SetDefault("security.rate_limit_window", "1m")
	v.SetDefault("security.rate_limit_burst", 20)
	v.SetDefault("security.idempotency_ttl", "24h")
	v.SetDefault("security.allowed_ips", []string{})

	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", AppName)
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
}

// NewViper returns a viper instance with defaults and RODPLUS_* environment
// overrides. configFile, when non-empty, must exist; otherwise an optional
// ./config.yaml is read.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return v, nil
}

// Load decodes v into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unusable values, clamps the rest into range and derives
// the base URL.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.MaxBodySize <= 0 {
		c.Server.MaxBodySize = 10 * 1024 * 1024
	}

	if c.Server.BaseURL == "" {
		host := c.Server.Host
		if host == "" || host == "0.0.0.0" {
			host = "localhost"
		}
		c.Server.BaseURL = fmt.Sprintf("http://%s:%d", host, c.Server.Port)
	}
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")

	if c.Browser.Bin != "" && c.Browser.RemoteURL != "" {
		return fmt.Errorf("browser.bin and browser.remote_url are mutually exclusive")
	}

	if c.Nats.Enabled && c.Nats.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled")
	}

	if c.Security.RateLimitRequests < 1 {
		c.Security.RateLimitRequests = 100
	}
	if c.Security.RateLimitWindow <= 0 {
		c.Security.RateLimitWindow = time.Minute
	}
	if c.Security.RateLimitBurst < 1 {
		c.Security.RateLimitBurst = 20
	}
	if c.Security.IdempotencyTTL <= 0 {
		c.Security.IdempotencyTTL = 24 * time.Hour
	}

	switch c.Logger.Format {
	case "console", "json":
	case "":
		c.Logger.Format = "console"
	default:
		return fmt.Errorf("logger.format must be console or json, got %q", c.Logger.Format)
	}

	return nil
}

// Addr is the listen address of the HTTP API.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
