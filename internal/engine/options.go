package engine

import (
	"log/slog"
	"time"

	"github.com/petrijr/envroute/internal/persistence"
	"github.com/petrijr/envroute/pkg/api"
)

// Option adjusts an engine Config before the engine is built.
type Option func(*Config)

func WithObserver(o api.Observer) Option {
	return func(c *Config) { c.Observer = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Config) { c.Clock = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(c *Config) { c.NewID = newID }
}

func WithDispatcher(d Dispatcher) Option {
	return func(c *Config) { c.Dispatcher = d }
}

// WithEventStore overrides where workflow history is kept.
func WithEventStore(es persistence.EventStore) Option {
	return func(c *Config) { c.Persistence.Events = es }
}

func (c *Config) apply(opts []Option) {
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
}
