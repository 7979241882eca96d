// Package config loads runtime configuration with the precedence
// defaults < environment < config file, backed by viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig covers the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// WebSocketConfig covers the broadcast core.
type WebSocketConfig struct {
	SendBuffer     int           `mapstructure:"send_buffer"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	MessageRate    float64       `mapstructure:"message_rate"`
	MessageBurst   int           `mapstructure:"message_burst"`
	EventQueueSize int           `mapstructure:"event_queue_size"`
}

// AuthConfig covers handshake token resolution.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// AuditConfig covers the connection audit log.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LogConfig covers logger construction.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "json" or "console"
	File       string `mapstructure:"file"`   // empty logs to stdout
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// Defaults are static; Load without a file cannot fail validation.
		panic(err)
	}
	return cfg
}

// Load builds the configuration. Environment variables prefixed TASKBOARD_
// override defaults (dots become underscores, e.g. TASKBOARD_SERVER_PORT);
// an optional YAML file at path overrides both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TASKBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.write_timeout", 10*time.Second)
	v.SetDefault("websocket.sweep_interval", 60*time.Second)
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.message_rate", 10.0)
	v.SetDefault("websocket.message_burst", 20)
	v.SetDefault("websocket.event_queue_size", 1024)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.cache_ttl", 5*time.Minute)

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.path", "./taskboard-audit.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("websocket send buffer must be positive")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("websocket write timeout must be positive")
	}
	if c.WebSocket.SweepInterval <= 0 {
		return fmt.Errorf("websocket sweep interval must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("websocket max message size must be positive")
	}
	if c.WebSocket.EventQueueSize <= 0 {
		return fmt.Errorf("websocket event queue size must be positive")
	}
	if c.WebSocket.MessageRate > 0 && c.WebSocket.MessageBurst <= 0 {
		return fmt.Errorf("websocket message burst must be positive when rate limiting is enabled")
	}
	if c.Audit.Enabled && c.Audit.Path == "" {
		return fmt.Errorf("audit path cannot be empty when audit is enabled")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log format must be json or console")
	}
	return nil
}
