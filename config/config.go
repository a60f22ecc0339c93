package config

import (
	"fmt"
	"log"
	"os"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Runs       RunsConfig       `yaml:"runs"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RequestIPHeader string        `yaml:"request_ip_header"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
	AllowedOrigins  []string      `yaml:"allowed_origins"` // CORS, empty disables
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogQueries             bool   `yaml:"log_queries"`
}

// ApplyPoolDefaults fills unset connection pool settings. Idle connections
// must stay above zero: an in-memory SQLite database lives only as long as
// one of its connections does.
func (d *DatabaseConfig) ApplyPoolDefaults() {
	if d.MaxOpenConns <= 0 {
		d.MaxOpenConns = 10
	}
	if d.MaxIdleConns <= 0 {
		d.MaxIdleConns = min(2, d.MaxOpenConns)
	}
	if d.MaxIdleConns > d.MaxOpenConns {
		d.MaxIdleConns = d.MaxOpenConns
	}
	if d.ConnMaxLifetimeMinutes <= 0 {
		d.ConnMaxLifetimeMinutes = 30
	}
}

// SchedulerConfig holds the engine constants.
type SchedulerConfig struct {
	Seats             int            `yaml:"seats"`
	HoursPerDay       int            `yaml:"hours_per_day"`
	DayStart          string         `yaml:"day_start"` // HH:MM
	DayStartOffset    time.Duration  `yaml:"-"`
	Timezone          string         `yaml:"timezone"`
	Location          *time.Location `yaml:"-"`
	MismatchPolicy    string         `yaml:"mismatch_policy"` // drop or reject
	TimeBudgetSeconds int            `yaml:"time_budget_seconds"`
	TimeBudget        time.Duration  `yaml:"-"`
	NodeLimit         int            `yaml:"node_limit"`
	MaxVariables      int            `yaml:"max_variables"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the scheduling worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// RunsConfig controls how long finished runs stay retrievable.
type RunsConfig struct {
	TTLMinutes int           `yaml:"ttl_minutes"`
	TTL        time.Duration `yaml:"-"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	if err := cfg.applyDefaults(); err != nil {
		panic(err)
	}
	return &cfg
}

func (cfg *Config) applyDefaults() error {
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
		cfg.Server.CacheTTLSeconds = 300
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "file:scheduler.db?_foreign_keys=on"
	}
	cfg.Database.ApplyPoolDefaults()

	s := &cfg.Scheduler
	if s.Seats <= 0 {
		s.Seats = 10
	}
	if s.HoursPerDay <= 0 {
		s.HoursPerDay = 9
	}
	if s.DayStart == "" {
		s.DayStart = "08:00"
	}
	offset, err := ParseClock(s.DayStart)
	if err != nil {
		return fmt.Errorf("scheduler.day_start: %w", err)
	}
	s.DayStartOffset = offset

	if s.Timezone == "" {
		s.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	s.Location = loc

	if s.MismatchPolicy == "" {
		s.MismatchPolicy = "drop"
	}
	if s.TimeBudgetSeconds <= 0 {
		s.TimeBudgetSeconds = 30
	}
	s.TimeBudget = time.Duration(s.TimeBudgetSeconds) * time.Second
	if s.NodeLimit <= 0 {
		s.NodeLimit = 2_000_000
	}
	if s.MaxVariables <= 0 {
		s.MaxVariables = 5_000_000
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = cfg.WorkerPool.Size * 4
	}

	if cfg.Runs.TTLMinutes <= 0 {
		cfg.Runs.TTLMinutes = 60
	}
	cfg.Runs.TTL = time.Duration(cfg.Runs.TTLMinutes) * time.Minute
	return nil
}

// ParseClock turns "HH:MM" into an offset from midnight.
func ParseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q, want HH:MM", v)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
