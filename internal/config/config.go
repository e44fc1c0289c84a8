package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration (file + env overrides)
type Config struct {
	Server struct {
		Addr                   string   `mapstructure:"addr"`
		LogLevel               string   `mapstructure:"log_level"`
		LogJSON                bool     `mapstructure:"log_json"`
		RequestTimeoutSeconds  int      `mapstructure:"request_timeout_seconds"`
		ShutdownTimeoutSeconds int      `mapstructure:"shutdown_timeout_seconds"`
		AllowedOrigins         []string `mapstructure:"allowed_origins"`
	} `mapstructure:"server"`

	Postgres struct {
		Host          string `mapstructure:"host"`
		Port          int    `mapstructure:"port"`
		User          string `mapstructure:"user"`
		Password      string `mapstructure:"password"`
		DBName        string `mapstructure:"db_name"`
		SSLMode       string `mapstructure:"ssl_mode"`
		MaxOpenConns  int    `mapstructure:"max_open_conns"`
		MaxIdleConns  int    `mapstructure:"max_idle_conns"`
		RunMigrations bool   `mapstructure:"run_migrations"`
	} `mapstructure:"postgres"`

	Listener struct {
		Channel                string `mapstructure:"channel"`
		ReconnectSeconds       int    `mapstructure:"reconnect_seconds"`
		RefreshIntervalSeconds int    `mapstructure:"refresh_interval_seconds"`
	} `mapstructure:"listener"`

	Redis struct {
		URL        string `mapstructure:"url"`
		TTLSeconds int    `mapstructure:"ttl_seconds"`
	} `mapstructure:"redis"`

	Matcher struct {
		Mode      string  `mapstructure:"mode"` // "substring" | "similarity"
		Threshold float64 `mapstructure:"threshold"`
		CacheSize int     `mapstructure:"cache_size"`
	} `mapstructure:"matcher"`

	Tracing struct {
		Enabled     bool   `mapstructure:"enabled"`
		Endpoint    string `mapstructure:"endpoint"`
		ServiceName string `mapstructure:"service_name"`
	} `mapstructure:"tracing"`
}

// every key needs a default so AutomaticEnv can see it during Unmarshal
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_json", false)
	v.SetDefault("server.request_timeout_seconds", 5)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.db_name", "campaigns")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 2)
	v.SetDefault("postgres.run_migrations", false)

	v.SetDefault("listener.channel", "")
	v.SetDefault("listener.reconnect_seconds", 5)
	v.SetDefault("listener.refresh_interval_seconds", 300)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.ttl_seconds", 60)

	v.SetDefault("matcher.mode", "substring")
	v.SetDefault("matcher.threshold", 0.85)
	v.SetDefault("matcher.cache_size", 4096)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "card-compare-engine")
}

func Load() Config {
	cfg, err := LoadFrom("configs")
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadFrom reads application.yaml from dir (optional) and APP_* env vars.
func LoadFrom(dir string) (Config, error) {
	v := viper.New()
	v.SetConfigName("application")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	setDefaults(v)
	_ = v.ReadInConfig() // optional; env can fully configure

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode config: %w", err)
	}
	validate(&cfg)
	return cfg, nil
}

func validate(c *Config) {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		c.Server.RequestTimeoutSeconds = 5
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = 10
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
	if c.Postgres.MaxOpenConns <= 0 {
		c.Postgres.MaxOpenConns = 10
	}
	if c.Postgres.MaxIdleConns < 0 {
		c.Postgres.MaxIdleConns = 0
	}
	if c.Postgres.MaxIdleConns > c.Postgres.MaxOpenConns {
		c.Postgres.MaxIdleConns = c.Postgres.MaxOpenConns
	}
	if c.Listener.ReconnectSeconds <= 0 {
		c.Listener.ReconnectSeconds = 5
	}
	if c.Listener.RefreshIntervalSeconds <= 0 {
		c.Listener.RefreshIntervalSeconds = 300
	}
	if c.Redis.TTLSeconds <= 0 {
		c.Redis.TTLSeconds = 60
	}
	c.Matcher.Mode = strings.ToLower(strings.TrimSpace(c.Matcher.Mode))
	if c.Matcher.Mode != "similarity" {
		c.Matcher.Mode = "substring"
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.DBName,
		c.Postgres.SSLMode,
	)
}

func (c Config) Backoff() time.Duration {
	return time.Duration(c.Listener.ReconnectSeconds) * time.Second
}

func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.Listener.RefreshIntervalSeconds) * time.Second
}

func (c Config) ResultTTL() time.Duration {
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}
