package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Routing      RoutingConfig      `yaml:"routing"`
	Quota        QuotaConfig        `yaml:"quota"`
	Conversation ConversationConfig `yaml:"conversation"`
	Commands     CommandsConfig     `yaml:"commands"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN returns the pgx pool connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&pool_max_conns=%d",
		d.User, d.Password, d.Host, d.Port, d.Name, max(d.MaxOpenConns, 1))
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
	GRPCPort    int    `yaml:"grpc_port"`
}

type RoutingConfig struct {
	// BackendTimeout bounds a single adapter call. Zero means no timeout.
	BackendTimeout time.Duration `yaml:"backend_timeout"`
	// CompareTimeout bounds each target of a comparison batch.
	CompareTimeout time.Duration  `yaml:"compare_timeout"`
	CompareTargets []TargetConfig `yaml:"compare_targets"`

	// Health reporting only; routing never consults it.
	HealthFailureThreshold int           `yaml:"health_failure_threshold"`
	HealthCooldown         time.Duration `yaml:"health_cooldown"`
}

type TargetConfig struct {
	Backend string `yaml:"backend"`
	Model   string `yaml:"model"`
}

type QuotaConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	DefaultPlan       PlanConfig    `yaml:"default_plan"`
	PolicyPath        string        `yaml:"policy_path"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
}

type PlanConfig struct {
	Name            string   `yaml:"name"`
	DailyRequests   int      `yaml:"daily_requests"`
	MonthlyTokens   int64    `yaml:"monthly_tokens"`
	AllowedBackends []string `yaml:"allowed_backends"`
}

type ConversationConfig struct {
	MaxMessages int           `yaml:"max_messages"`
	TTL         time.Duration `yaml:"ttl"`
}

type CommandsConfig struct {
	SigningSecret string        `yaml:"signing_secret"`
	MaxClockSkew  time.Duration `yaml:"max_clock_skew"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Port:            5432,
			Name:            "relay",
			User:            "relay",
			MaxOpenConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			DB:       0,
			PoolSize: 20,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: 9090,
			GRPCPort:    9091,
		},
		Routing: RoutingConfig{
			BackendTimeout: 60 * time.Second,
			CompareTimeout: 90 * time.Second,

			HealthFailureThreshold: 3,
			HealthCooldown:         time.Minute,
		},
		Quota: QuotaConfig{
			Enabled:           true,
			RequestsPerMinute: 20,
			DefaultPlan: PlanConfig{
				Name:          "free",
				DailyRequests: 50,
				MonthlyTokens: 100_000,
			},
			EvaluationTimeout: 100 * time.Millisecond,
		},
		Conversation: ConversationConfig{
			MaxMessages: 20,
			TTL:         7 * 24 * time.Hour,
		},
		Commands: CommandsConfig{
			MaxClockSkew: 5 * time.Minute,
		},
	}
}
