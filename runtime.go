package envroute

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/petrijr/envroute/internal/engine"
	"github.com/petrijr/envroute/internal/persistence"
	"github.com/petrijr/envroute/internal/taskqueue"
	"github.com/petrijr/envroute/pkg/worker"
)

// Runtime bundles an Engine with the background machinery around it: worker
// goroutines delivering queued effects and a sweeper resuming scheduled
// workflows.
//
// Typical usage:
//
//	rt, err := envroute.Open(ctx, cfg, collaborators)
//	if err != nil { ... }
//	defer rt.Close(ctx)
//	_ = rt.Start(ctx)
//	_, _ = rt.Engine.InitializeWorkflow(ctx, envelopeID, nil)
type Runtime struct {
	// Engine is the routing engine. Use it directly for every command.
	Engine Engine

	// Worker delivers queued effects. Nil when effects are applied inline.
	Worker *worker.Worker

	// Sweeper resumes scheduled workflows. Nil when disabled.
	Sweeper *engine.Sweeper

	queue   taskqueue.Queue
	workers int
	logger  *slog.Logger
	closers []func(context.Context) error

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

type runtimeParts struct {
	persistence persistence.Persistence
	queue       taskqueue.Queue // nil: deliver effects inline
	worker      worker.Config
	workers     int
	sweeper     *engine.SweeperConfig // nil: no sweeper
	closers     []func(context.Context) error
}

func assemble(parts runtimeParts, c Collaborators, opts []Option) (*Runtime, error) {
	cfg := engine.Config{Persistence: parts.persistence, Collaborators: c}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	rt := &Runtime{
		queue:   parts.queue,
		workers: parts.workers,
		logger:  cfg.Logger,
		closers: parts.closers,
	}
	if rt.workers <= 0 {
		rt.workers = 1
	}

	if parts.queue != nil && cfg.Dispatcher == nil {
		wcfg := parts.worker
		if wcfg.Observer == nil {
			wcfg.Observer = cfg.Observer
		}
		if wcfg.Logger == nil {
			wcfg.Logger = cfg.Logger
		}
		rt.Worker = worker.NewWithConfig(parts.queue, c.Envelopes, c.Notifier, wcfg)
		cfg.Dispatcher = engine.NewQueueDispatcher(rt.Worker, cfg.Observer, cfg.Logger)
	}

	eng, err := engine.NewEngineWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	rt.Engine = eng

	if parts.sweeper != nil {
		s, err := engine.NewSweeper(eng, *parts.sweeper, cfg.Logger)
		if err != nil {
			return nil, err
		}
		rt.Sweeper = s
	}
	return rt, nil
}

// Start launches the worker goroutines and the sweeper. Calling Start twice
// without Stop is an error.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("envroute: runtime already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	if r.Worker != nil {
		r.wg.Add(r.workers)
		for i := 0; i < r.workers; i++ {
			go func() {
				defer r.wg.Done()
				if err := r.Worker.Run(ctx); err != nil {
					r.logger.Error("effect worker stopped", slog.Any("error", err))
				}
			}()
		}
	}

	if r.Sweeper != nil {
		if err := r.Sweeper.Start(ctx); err != nil {
			cancel()
			r.running = false
			return err
		}
	}
	return nil
}

// Stop halts the sweeper and the workers and waits for them to exit.
// Queued effects stay queued.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	var err error
	if r.Sweeper != nil {
		err = r.Sweeper.Stop(ctx)
	}
	cancel()
	r.wg.Wait()
	return err
}

// Close stops the runtime and releases the connections Open created.
func (r *Runtime) Close(ctx context.Context) error {
	errs := []error{r.Stop(ctx)}
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i](ctx))
	}
	r.closers = nil
	return errors.Join(errs...)
}

// PendingEffects returns the approximate number of effects awaiting delivery.
func (r *Runtime) PendingEffects() int {
	if r.queue == nil {
		return 0
	}
	return r.queue.Len()
}
