package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port         string `yaml:"port" validate:"required,numeric"`
	AllowOrigins string `yaml:"allow_origins"`
	Name         string `yaml:"name" validate:"required"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url" validate:"required"`
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	Migrate         bool          `yaml:"migrate"`
}

type RedisConfig struct {
	URL          string `yaml:"url" validate:"required"`
	PoolSize     int    `yaml:"pool_size" validate:"gte=1"`
	MinIdleConns int    `yaml:"min_idle_conns" validate:"gte=0"`
}

type AuthConfig struct {
	JWTSecret      string `yaml:"jwt_secret" validate:"required"`
	AdminKeyBcrypt string `yaml:"admin_key_bcrypt"`
}

type GPSConfig struct {
	CacheTTL       time.Duration `yaml:"cache_ttl" validate:"gt=0"`
	SampleEvery    int64         `yaml:"sample_every" validate:"gte=1"`
	CounterTTL     time.Duration `yaml:"counter_ttl" validate:"gt=0"`
	MaxFutureSkew  time.Duration `yaml:"max_future_skew" validate:"gte=0"`
	HeartbeatLimit int           `yaml:"heartbeat_limit_per_minute" validate:"gte=1"`
}

type SchedulerConfig struct {
	Enabled    bool   `yaml:"enabled"`
	DailyAt    string `yaml:"daily_at" validate:"required,datetime=15:04"`
	Timezone   string `yaml:"timezone" validate:"required"`
	RunOnStart bool   `yaml:"run_on_start"`
}

type HubConfig struct {
	SendBuffer  int    `yaml:"send_buffer" validate:"gte=1"`
	Channel     string `yaml:"channel" validate:"required"`
	DedupWindow int    `yaml:"dedup_window" validate:"gte=0"`
}

type TelemetryConfig struct {
	MetricsEnabled  bool          `yaml:"metrics_enabled"`
	TracingEnabled  bool          `yaml:"tracing_enabled"`
	Endpoint        string        `yaml:"endpoint"`
	Protocol        string        `yaml:"protocol" validate:"omitempty,oneof=grpc http/protobuf"`
	Insecure        bool          `yaml:"insecure"`
	ExportInterval  time.Duration `yaml:"export_interval"`
	ProfilingServer string        `yaml:"profiling_server" validate:"omitempty,url"`
}

type Config struct {
	LogLevel  string          `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	LogFormat string          `yaml:"log_format" validate:"omitempty,oneof=text json"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	GPS       GPSConfig       `yaml:"gps"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Hub       HubConfig       `yaml:"hub"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Server: ServerConfig{
			Port:         "8082",
			Name:         "fleetdispatch",
			AllowOrigins: "http://localhost:3000",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 3 * time.Minute,
			Migrate:         true,
		},
		Redis: RedisConfig{
			URL:          "redis://localhost:6379",
			PoolSize:     10,
			MinIdleConns: 3,
		},
		Auth: AuthConfig{
			JWTSecret: "dev-secret-key-change-in-production",
		},
		GPS: GPSConfig{
			CacheTTL:       5 * time.Minute,
			SampleEvery:    5,
			CounterTTL:     24 * time.Hour,
			MaxFutureSkew:  2 * time.Minute,
			HeartbeatLimit: 120,
		},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			DailyAt:  "00:05",
			Timezone: "UTC",
		},
		Hub: HubConfig{
			SendBuffer:  64,
			Channel:     "fleet:broadcast",
			DedupWindow: 1024,
		},
		Telemetry: TelemetryConfig{
			Protocol:       "http/protobuf",
			ExportInterval: 60 * time.Second,
		},
	}
}

// Load reads the YAML file at path (optional when empty or missing), applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
		return Config{}, fmt.Errorf("invalid config: scheduler.timezone: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Auth.AdminKeyBcrypt, "ADMIN_SECRET_KEY_HASH")
	setString(&cfg.Scheduler.Timezone, "SCHEDULER_TIMEZONE")
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Telemetry.MetricsEnabled, "OTEL_METRICS_ENABLED")
	setBool(&cfg.Telemetry.TracingEnabled, "OTEL_TRACING_ENABLED")
	setString(&cfg.Telemetry.ProfilingServer, "PYROSCOPE_SERVER_ADDRESS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// Location returns the scheduler time zone. Load has already validated it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
