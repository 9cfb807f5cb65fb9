package engine

import (
	"context"
	"log/slog"

	"github.com/petrijr/envroute/pkg/api"
)

// Dispatcher delivers the effects of a committed transition. Dispatch never
// reports failure to the engine command that produced the effects; the
// transition has already committed.
type Dispatcher interface {
	Dispatch(ctx context.Context, effects []api.Effect)
}

// DirectDispatcher applies effects synchronously on the caller's goroutine.
// A failed effect is logged and reported to the observer, then dropped.
type DirectDispatcher struct {
	envelopes api.EnvelopeService
	notifier  api.Notifier
	observer  api.Observer
	logger    *slog.Logger
}

var _ Dispatcher = (*DirectDispatcher)(nil)

func NewDirectDispatcher(envelopes api.EnvelopeService, notifier api.Notifier, observer api.Observer, logger *slog.Logger) *DirectDispatcher {
	if observer == nil {
		observer = api.NoopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectDispatcher{
		envelopes: envelopes,
		notifier:  notifier,
		observer:  observer,
		logger:    logger,
	}
}

func (d *DirectDispatcher) Dispatch(ctx context.Context, effects []api.Effect) {
	for _, eff := range effects {
		if err := eff.Apply(ctx, d.envelopes, d.notifier); err != nil {
			d.logger.Warn("effect delivery failed",
				slog.String("effect", string(eff.Kind)),
				slog.String("envelope_id", eff.EnvelopeID),
				slog.String("recipient_id", eff.RecipientID),
				slog.Any("error", err),
			)
			d.observer.OnEffectFailed(ctx, eff, err, false)
		}
	}
}

// Enqueuer accepts effects for asynchronous delivery. *worker.Worker
// implements it.
type Enqueuer interface {
	EnqueueEffect(ctx context.Context, eff api.Effect) error
}

// QueueDispatcher hands effects to a task queue; a worker delivers them
// with retries.
type QueueDispatcher struct {
	enqueuer Enqueuer
	observer api.Observer
	logger   *slog.Logger
}

var _ Dispatcher = (*QueueDispatcher)(nil)

func NewQueueDispatcher(enqueuer Enqueuer, observer api.Observer, logger *slog.Logger) *QueueDispatcher {
	if observer == nil {
		observer = api.NoopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueDispatcher{
		enqueuer: enqueuer,
		observer: observer,
		logger:   logger,
	}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, effects []api.Effect) {
	for _, eff := range effects {
		if err := d.enqueuer.EnqueueEffect(ctx, eff); err != nil {
			d.logger.Error("enqueue effect failed",
				slog.String("effect", string(eff.Kind)),
				slog.String("envelope_id", eff.EnvelopeID),
				slog.Any("error", err),
			)
			d.observer.OnEffectFailed(ctx, eff, err, false)
		}
	}
}
