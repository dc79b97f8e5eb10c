package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server          ServerConfig          `mapstructure:"server"`
	Database        DatabaseConfig        `mapstructure:"database"`
	RuleEngine      ServiceConfig         `mapstructure:"rule_engine"`
	Decision        ServiceConfig         `mapstructure:"decision"`
	Collab          CollabConfig          `mapstructure:"collab"`
	Session         SessionConfig         `mapstructure:"session"`
	Instrumentation InstrumentationConfig `mapstructure:"instrumentation"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type ServiceConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type CollabConfig struct {
	RequestTimeoutMs   int `mapstructure:"request_timeout_ms"`
	TranslateTimeoutMs int `mapstructure:"translate_timeout_ms"`
}

// RequestTimeout bounds every collaborator call except translation.
func (c CollabConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// TranslateTimeout bounds translation calls, which wait on an LLM.
func (c CollabConfig) TranslateTimeout() time.Duration {
	return time.Duration(c.TranslateTimeoutMs) * time.Millisecond
}

type SessionConfig struct {
	TokenSecret string `mapstructure:"token_secret"`
	TTLMinutes  int    `mapstructure:"ttl_minutes"`
}

// TTL is how long an idle authoring session survives.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLMinutes) * time.Minute
}

type InstrumentationConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	BufferSize      int  `mapstructure:"buffer_size"`
	FlushIntervalMs int  `mapstructure:"flush_interval_ms"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path + "/" + d.Name + ".db"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../..")

	viper.SetDefault("server.port", 8090)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.pool_size", 10)
	viper.SetDefault("database.name", "rulemaker")
	viper.SetDefault("database.path", "./data")
	viper.SetDefault("rule_engine.base_url", "http://127.0.0.1:8001")
	viper.SetDefault("decision.base_url", "http://127.0.0.1:8002")
	viper.SetDefault("collab.request_timeout_ms", 15000)
	viper.SetDefault("collab.translate_timeout_ms", 60000)
	viper.SetDefault("session.token_secret", "changeme-secret")
	viper.SetDefault("session.ttl_minutes", 240)
	viper.SetDefault("instrumentation.enabled", true)
	viper.SetDefault("instrumentation.buffer_size", 500)
	viper.SetDefault("instrumentation.flush_interval_ms", 100)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Defaults plus env vars are enough to run; only a malformed file is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
