package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server       ServerConfig      `yaml:"server"`
	Database     DatabaseConfig    `yaml:"database"`
	Push         PushConfig        `yaml:"push"`
	WorkerPool   WorkerPoolConfig  `yaml:"worker_pool"`
	Scheduler    SchedulerConfig   `yaml:"scheduler"`
	Reservations ReservationConfig `yaml:"reservations"`
	Auth         AuthConfig        `yaml:"auth"`
	Redis        RedisConfig       `yaml:"redis"`
	AMQP         AMQPConfig        `yaml:"amqp"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are present.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
	// CommandTimeoutSeconds bounds each persistence call made on behalf of a request.
	CommandTimeoutSeconds int `yaml:"command_timeout_seconds"`
}

// SchedulerConfig controls the periodic sweep.
type SchedulerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"` // Ignored by YAML parser
	HorizonDays     int           `yaml:"horizon_days"`
	Timezone        string        `yaml:"timezone"`
}

// Location resolves Timezone, falling back to UTC.
func (s SchedulerConfig) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		log.Printf("Warning: invalid timezone %q: %v. Using UTC.", s.Timezone, err)
		return time.UTC
	}
	return loc
}

// ReservationConfig holds reservation lifecycle settings.
type ReservationConfig struct {
	DueSoonHours int           `yaml:"due_soon_hours"`
	DueSoon      time.Duration `yaml:"-"`
}

// AuthConfig holds the shared secret used to verify bearer tokens.
type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret"`
	ManagerRole string `yaml:"manager_role"`
}

// RedisConfig enables the distributed entity lock when Addr is set.
type RedisConfig struct {
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db"`
	LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
	LockRetries    int    `yaml:"lock_retries"`
	LockBackoffMS  int    `yaml:"lock_backoff_ms"`
}

// AMQPConfig enables publishing notifications to a broker when URL is set.
type AMQPConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                    string `yaml:"driver"` // postgres | sqlite
	DSN                       string `yaml:"dsn"`
	MaxOpenConns              int    `yaml:"max_open_conns"`
	MaxIdleConns              int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes    int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel                  string `yaml:"log_level"`
	EnableExclusionConstraint bool   `yaml:"enable_exclusion_constraint"`
}

// Load reads the configuration from the given path. ${VAR} references in the
// file are expanded from the environment before decoding.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes a YAML document and applies defaults.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}
	if cfg.Server.CommandTimeoutSeconds <= 0 {
		cfg.Server.CommandTimeoutSeconds = 5
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Scheduler.IntervalSeconds <= 0 {
		cfg.Scheduler.IntervalSeconds = 60
	}
	cfg.Scheduler.Interval = time.Duration(cfg.Scheduler.IntervalSeconds) * time.Second
	if cfg.Scheduler.HorizonDays <= 0 {
		cfg.Scheduler.HorizonDays = 14
	}

	if cfg.Reservations.DueSoonHours <= 0 {
		cfg.Reservations.DueSoonHours = 24
	}
	cfg.Reservations.DueSoon = time.Duration(cfg.Reservations.DueSoonHours) * time.Hour

	if cfg.Auth.ManagerRole == "" {
		cfg.Auth.ManagerRole = "manager"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.Redis.LockTTLSeconds <= 0 {
		cfg.Redis.LockTTLSeconds = 10
	}
	if cfg.Redis.LockBackoffMS <= 0 {
		cfg.Redis.LockBackoffMS = 50
	}
	if cfg.Redis.LockRetries <= 0 {
		cfg.Redis.LockRetries = 40
	}

	if cfg.AMQP.Queue == "" {
		cfg.AMQP.Queue = "club.notifications"
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 64
	}
}
