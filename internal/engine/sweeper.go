package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/petrijr/envroute/internal/routing"
	"github.com/petrijr/envroute/pkg/api"
)

func (e *engineImpl) ProcessScheduledWorkflows(ctx context.Context) (int, error) {
	ids, err := e.store.ListScheduled(ctx, e.now())
	if err != nil {
		return 0, fmt.Errorf("list scheduled workflows: %w", err)
	}

	var (
		resumed int
		errs    []error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		ok, err := e.resumeIfDue(ctx, id)
		if err != nil {
			e.logger.Error("scheduled resume failed",
				slog.String("envelope_id", id),
				slog.Any("error", err),
			)
			errs = append(errs, fmt.Errorf("resume workflow %s: %w", id, err))
			continue
		}
		if ok {
			resumed++
		}
	}
	return resumed, errors.Join(errs...)
}

// resumeIfDue resumes the workflow only if, under the lock, it is still
// paused with a resume time that has passed.
func (e *engineImpl) resumeIfDue(ctx context.Context, envelopeID string) (bool, error) {
	snap, err := e.mutate(ctx, envelopeID, func(t *routing.Transition, cur *api.Snapshot) (*api.Snapshot, error) {
		if cur == nil || cur.Workflow.Status != api.WorkflowPaused {
			return nil, nil
		}
		at := cur.Workflow.ScheduledResumeAt
		if at == nil || at.After(t.Now) {
			return nil, nil
		}
		if err := t.Resume(cur); err != nil {
			return nil, err
		}
		return cur, nil
	})
	if err != nil {
		return false, err
	}
	return snap != nil, nil
}

// DefaultSweepSchedule runs the sweeper every 30 seconds.
const DefaultSweepSchedule = "@every 30s"

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	// Schedule is a cron expression or descriptor. Defaults to DefaultSweepSchedule.
	Schedule string

	// Timeout bounds one sweep. Defaults to one minute.
	Timeout time.Duration
}

// Sweeper periodically resumes scheduled workflows. Runs never overlap: a
// tick that fires while the previous sweep is still running is skipped.
type Sweeper struct {
	engine  api.Engine
	expr    string
	timeout time.Duration
	logger  *slog.Logger
	cron    *cronlib.Cron
}

// NewSweeper creates a Sweeper for eng.
func NewSweeper(eng api.Engine, cfg SweeperConfig, logger *slog.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSweepSchedule
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	sched, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("sweeper: invalid schedule %q: %w", cfg.Schedule, err)
	}

	cl := cronLogger{logger: logger}
	s := &Sweeper{
		engine:  eng,
		expr:    cfg.Schedule,
		timeout: cfg.Timeout,
		logger:  logger,
		cron: cronlib.New(
			cronlib.WithParser(cronParser),
			cronlib.WithLogger(cl),
			cronlib.WithChain(cronlib.Recover(cl), cronlib.SkipIfStillRunning(cl)),
		),
	}
	s.cron.Schedule(sched, cronlib.FuncJob(s.tick))
	return s, nil
}

// Start begins running sweeps on the schedule and returns immediately.
func (s *Sweeper) Start(_ context.Context) error {
	s.cron.Start()
	s.logger.Info("sweeper started", slog.String("schedule", s.expr))
	return nil
}

// Stop stops scheduling and waits for a running sweep to finish, or for ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs one sweep immediately.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.engine.ProcessScheduledWorkflows(ctx)
}

func (s *Sweeper) tick() {
	n, err := s.RunOnce(context.Background())
	if err != nil {
		s.logger.Error("sweep finished with errors", slog.Int("resumed", n), slog.Any("error", err))
		return
	}
	if n > 0 {
		s.logger.Info("sweep resumed workflows", slog.Int("resumed", n))
	}
}

// cronLogger adapts slog to cron's logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]any{slog.Any("error", err)}, keysAndValues...)...)
}
