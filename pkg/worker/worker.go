package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/envroute/internal/taskqueue"
	"github.com/petrijr/envroute/pkg/api"
)

// Config controls retry behaviour.
type Config struct {
	// MaxAttempts is the total number of deliveries tried for an envelope
	// effect before it is dropped. Defaults to 5.
	MaxAttempts int

	// Backoff is the delay before the first retry; it doubles with every
	// further attempt. Defaults to one second.
	Backoff time.Duration

	// MaxBackoff caps the retry delay. Defaults to one minute.
	MaxBackoff time.Duration

	Observer api.Observer
	Logger   *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Minute
	}
	if c.MaxBackoff < c.Backoff {
		c.MaxBackoff = c.Backoff
	}
	if c.Observer == nil {
		c.Observer = api.NoopObserver{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Worker pulls effect tasks from a Queue and applies them.
type Worker struct {
	queue     taskqueue.Queue
	envelopes api.EnvelopeService
	notifier  api.Notifier
	cfg       Config
	now       func() time.Time
}

// New creates a new Worker with default retry settings.
func New(queue taskqueue.Queue, envelopes api.EnvelopeService, notifier api.Notifier) *Worker {
	return NewWithConfig(queue, envelopes, notifier, Config{})
}

// NewWithConfig creates a new Worker using cfg.
func NewWithConfig(queue taskqueue.Queue, envelopes api.EnvelopeService, notifier api.Notifier, cfg Config) *Worker {
	return &Worker{
		queue:     queue,
		envelopes: envelopes,
		notifier:  notifier,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
	}
}

// EnqueueEffect schedules eff for delivery.
func (w *Worker) EnqueueEffect(ctx context.Context, eff api.Effect) error {
	return w.queue.Enqueue(ctx, taskqueue.Task{
		ID:         uuid.NewString(),
		Type:       taskqueue.TaskTypeApplyEffect,
		Effect:     eff,
		EnqueuedAt: w.now(),
	})
}

// Pending returns the approximate number of queued tasks.
func (w *Worker) Pending() int {
	return w.queue.Len()
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false: no task was obtained; err carries the dequeue error
//     (typically ctx cancellation).
//   - processed == true, err == nil: the effect was delivered, or it failed
//     and a retry has been scheduled.
//   - processed == true, err != nil: the effect failed and was dropped.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	switch task.Type {
	case taskqueue.TaskTypeApplyEffect:
		return true, w.apply(ctx, task)
	default:
		// Unknown task type; mark as processed but return an error so this isn't silently ignored.
		return true, errors.New("unknown task type: " + string(task.Type))
	}
}

func (w *Worker) apply(ctx context.Context, task *taskqueue.Task) error {
	eff := task.Effect
	err := eff.Apply(ctx, w.envelopes, w.notifier)
	if err == nil {
		w.cfg.Logger.Debug("effect delivered",
			slog.String("effect", string(eff.Kind)),
			slog.String("envelope_id", eff.EnvelopeID),
			slog.Int("attempt", task.Attempts+1),
		)
		return nil
	}

	task.Attempts++
	if eff.FireAndForget() || task.Attempts >= w.cfg.MaxAttempts {
		w.cfg.Observer.OnEffectFailed(ctx, eff, err, false)
		return err
	}

	retry := *task
	retry.NotBefore = w.now().Add(w.backoff(task.Attempts))
	if qErr := w.queue.Enqueue(ctx, retry); qErr != nil {
		w.cfg.Observer.OnEffectFailed(ctx, eff, err, false)
		return errors.Join(err, qErr)
	}
	w.cfg.Observer.OnEffectFailed(ctx, eff, err, true)
	return nil
}

// backoff returns the delay before retry number attempt (1-based).
func (w *Worker) backoff(attempt int) time.Duration {
	d := w.cfg.Backoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= w.cfg.MaxBackoff {
			return w.cfg.MaxBackoff
		}
	}
	return d
}

// Run processes tasks until ctx is cancelled. Dropped effects are already
// reported to the observer, so Run only logs them.
func (w *Worker) Run(ctx context.Context) error {
	for {
		processed, err := w.ProcessOne(ctx)
		if !processed {
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				w.cfg.Logger.Error("dequeue failed", slog.Any("error", err))
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(w.cfg.Backoff):
				}
			}
			continue
		}
		if err != nil {
			w.cfg.Logger.Debug("effect dropped", slog.Any("error", err))
		}
	}
}
