// Package config provides configuration management for the NoteScript service.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the NoteScript service.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	MongoDB MongoDBConfig `mapstructure:"mongodb"`
	Redis   RedisConfig   `mapstructure:"redis"`
	History HistoryConfig `mapstructure:"history"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Engine  EngineConfig  `mapstructure:"engine"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MongoDBConfig holds MongoDB connection configuration for vault storage.
type MongoDBConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// RedisConfig holds Redis connection configuration for event publishing.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// HistoryConfig holds PostgreSQL configuration for the evaluation audit log.
type HistoryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	DatabaseDSN string `mapstructure:"database_dsn"`
}

// AuthConfig holds API authentication configuration.
type AuthConfig struct {
	ServiceToken string `mapstructure:"service_token"`
}

// EngineConfig holds script engine defaults and limits.
type EngineConfig struct {
	DefaultTimeout   time.Duration `mapstructure:"default_timeout"`
	MaxTimeout       time.Duration `mapstructure:"max_timeout"`
	GracePeriod      time.Duration `mapstructure:"grace_period"`
	MaxScriptBytes   int           `mapstructure:"max_script_bytes"`
	MemoryLimitBytes int64         `mapstructure:"memory_limit_bytes"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("mongodb.enabled", false)
	v.SetDefault("mongodb.uri", "mongodb://localhost:27017")
	v.SetDefault("mongodb.database", "notescript")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.database_dsn", "postgres://localhost/notescript?sslmode=disable")

	v.SetDefault("engine.default_timeout", 5*time.Second)
	v.SetDefault("engine.max_timeout", 60*time.Second)
	v.SetDefault("engine.grace_period", 100*time.Millisecond)
	v.SetDefault("engine.max_script_bytes", 1<<20)
	v.SetDefault("engine.memory_limit_bytes", int64(128<<20))

	// Read config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/notescript")
	}

	// Read environment variables
	v.SetEnvPrefix("NOTESCRIPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Try to read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
