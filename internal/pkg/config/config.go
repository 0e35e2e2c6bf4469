package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	WebService     WebServiceConfig     `mapstructure:"web_service"`
	RemoteExecutor RemoteExecutorConfig `mapstructure:"remote_executor"`
	Database       DatabaseConfig       `mapstructure:"database"`
	RedisService   RedisServiceConfig   `mapstructure:"redis_service"`
	JWT            JWTConfig            `mapstructure:"jwt"`
	Log            LogConfig            `mapstructure:"log"`
	Admin          AdminConfig          `mapstructure:"admin"`
	State          StateConfig          `mapstructure:"state"`
}

type WebServiceConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type RemoteExecutorConfig struct {
	BaseURL          string      `mapstructure:"base_url"`
	RequestTimeoutS  int         `mapstructure:"request_timeout_s"`
	PollIntervalMs   int         `mapstructure:"poll_interval_ms"`
	MaxPollAttempts  int         `mapstructure:"max_poll_attempts"`
	BatchConcurrency int         `mapstructure:"batch_concurrency"`
	Retry            RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	MaxDelayMs  int `mapstructure:"max_delay_ms"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type RedisServiceConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	DB      int    `mapstructure:"db"`
}

type JWTConfig struct {
	SecretKey   string `mapstructure:"secret_key"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

type StateConfig struct {
	DebounceMs int `mapstructure:"debounce_ms"`
}

var cfg *Config

// Load loads the configuration from a YAML file and applies defaults for the
// polling and retry budgets.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetDefault("web_service.host", "0.0.0.0")
	v.SetDefault("web_service.port", 16402)
	v.SetDefault("remote_executor.request_timeout_s", 30)
	v.SetDefault("remote_executor.poll_interval_ms", 5000)
	v.SetDefault("remote_executor.max_poll_attempts", 120)
	v.SetDefault("remote_executor.batch_concurrency", 5)
	v.SetDefault("remote_executor.retry.max_attempts", 4)
	v.SetDefault("remote_executor.retry.base_delay_ms", 1000)
	v.SetDefault("remote_executor.retry.max_delay_ms", 30000)
	v.SetDefault("database.path", "data/canvas.db")
	v.SetDefault("state.debounce_ms", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Get returns the loaded configuration
func Get() *Config {
	return cfg
}

// GetWebServiceAddr returns the web service address
func (c *Config) GetWebServiceAddr() string {
	return fmt.Sprintf("%s:%d", c.WebService.Host, c.WebService.Port)
}

// GetRedisAddr returns the redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisService.Host, c.RedisService.Port)
}

// PollInterval returns the polling cadence as a duration.
func (c *RemoteExecutorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// RequestTimeout returns the per-call transport timeout as a duration.
func (c *RemoteExecutorConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutS) * time.Second
}

// Debounce returns the instant-state debounce window as a duration.
func (c *StateConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}
