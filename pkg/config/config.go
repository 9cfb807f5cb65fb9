// Package config loads the runtime configuration of an envroute deployment
// from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/petrijr/envroute/internal/engine"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
)

// Effect delivery modes.
const (
	QueueDirect   = "direct"
	QueueMemory   = "memory"
	QueueSQLite   = "sqlite"
	QueuePostgres = "postgres"
	QueueMongo    = "mongo"
)

type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Sweeper SweeperConfig `yaml:"sweeper"`
	Effects EffectsConfig `yaml:"effects"`
	Log     LogConfig     `yaml:"log"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"`

	// DSN is the SQLite file or PostgreSQL connection string.
	DSN string `yaml:"dsn"`

	Redis RedisConfig `yaml:"redis"`
	Mongo MongoConfig `yaml:"mongo"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type SweeperConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Schedule string        `yaml:"schedule"`
	Timeout  time.Duration `yaml:"timeout"`
}

type EffectsConfig struct {
	Queue       string        `yaml:"queue"`
	Workers     int           `yaml:"workers"`
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns an in-memory configuration with the sweeper enabled.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Backend: BackendMemory,
			Redis:   RedisConfig{Addr: "localhost:6379", Prefix: "envroute:"},
			Mongo:   MongoConfig{Database: "envroute", Collection: "routing_workflows"},
		},
		Sweeper: SweeperConfig{
			Enabled:  true,
			Schedule: engine.DefaultSweepSchedule,
			Timeout:  time.Minute,
		},
		Effects: EffectsConfig{
			Queue:       QueueMemory,
			Workers:     1,
			MaxAttempts: 5,
			Backoff:     time.Second,
			MaxBackoff:  time.Minute,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads and validates the YAML file at path. Fields missing from the
// file keep their Default values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite, BackendPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for the %s backend", c.Store.Backend))
		}
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for the redis backend"))
		}
	case BackendMongo:
		if c.Store.Mongo.URI == "" {
			errs = append(errs, errors.New("store.mongo.uri is required for the mongo backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}

	switch c.Effects.Queue {
	case QueueDirect, QueueMemory:
	case QueueSQLite, QueuePostgres, QueueMongo:
		// Durable queues share the store's connection.
		if c.Store.Backend != c.Effects.Queue {
			errs = append(errs, fmt.Errorf("effects.queue %s requires the %s store backend", c.Effects.Queue, c.Effects.Queue))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown effects.queue %q", c.Effects.Queue))
	}
	if c.Effects.Workers < 0 || c.Effects.MaxAttempts < 0 {
		errs = append(errs, errors.New("effects.workers and effects.max_attempts must not be negative"))
	}

	if c.Sweeper.Enabled {
		if _, err := engine.ParseSchedule(c.Sweeper.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("sweeper.schedule: %w", err))
		}
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// NewLogger builds the configured slog logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
