package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/logger"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Stream  StreamConfig  `mapstructure:"stream"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type StreamConfig struct {
	// Keepalive comment interval for open streams, seconds.
	KeepAliveSec int `mapstructure:"keepalive_sec"`
}

type AuthConfig struct {
	// Static bearer token -> user id mapping. Stands in for the hosted
	// auth provider outside production.
	Tokens map[string]string `mapstructure:"tokens"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

// Load reads configuration from an optional YAML file plus
// EXPENSE_TRACKER_* environment overrides, with sane defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("stream.keepalive_sec", 30)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "")

	v.SetEnvPrefix("EXPENSE_TRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Stream.KeepAliveSec <= 0 {
		return fmt.Errorf("stream.keepalive_sec must be positive, got %d", c.Stream.KeepAliveSec)
	}
	return nil
}

// LoggerConfig translates the logging section into the logger package's
// config struct.
func (c *Config) LoggerConfig() *logger.Config {
	lc := logger.NewDefaultConfig()
	lc.Level = logger.ParseLevel(c.Logging.Level)
	if c.Logging.Format != "" {
		lc.Format = c.Logging.Format
	}
	if c.Logging.Output != "" {
		lc.Output = c.Logging.Output
	}
	lc.FilePath = c.Logging.FilePath
	return lc
}
