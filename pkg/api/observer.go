package api

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Observer receives callbacks from the routing engine for logging and metrics.
// Callbacks run after a transition has committed.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay the caller of the engine command.
type Observer interface {
	// OnWorkflowEvent is called once per history event of a committed transition.
	OnWorkflowEvent(ctx context.Context, wf *Workflow, ev WorkflowEvent)

	// OnEffectFailed is called when delivering a post-commit effect fails.
	// willRetry is false once the effect has been dropped.
	OnEffectFailed(ctx context.Context, eff Effect, err error, willRetry bool)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnWorkflowEvent(ctx context.Context, wf *Workflow, ev WorkflowEvent) {}
func (NoopObserver) OnEffectFailed(ctx context.Context, eff Effect, err error, willRetry bool) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnWorkflowEvent(ctx context.Context, wf *Workflow, ev WorkflowEvent) {
	for _, o := range c.observers {
		o.OnWorkflowEvent(ctx, wf, ev)
	}
}

func (c *CompositeObserver) OnEffectFailed(ctx context.Context, eff Effect, err error, willRetry bool) {
	for _, o := range c.observers {
		o.OnEffectFailed(ctx, eff, err, willRetry)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs workflow and step events
// using the provided slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnWorkflowEvent(ctx context.Context, wf *Workflow, ev WorkflowEvent) {
	level := slog.LevelInfo
	if ev.StepID != "" {
		level = slog.LevelDebug
	}
	attrs := []slog.Attr{
		slog.String("envelope_id", ev.EnvelopeID),
		slog.String("workflow_id", ev.WorkflowID),
		slog.String("status", string(wf.Status)),
		slog.Int("routing_order", wf.CurrentRoutingOrder),
	}
	if ev.RecipientID != "" {
		attrs = append(attrs, slog.String("recipient_id", ev.RecipientID))
	}
	if ev.Detail != "" {
		attrs = append(attrs, slog.String("detail", ev.Detail))
	}
	o.Logger.LogAttrs(ctx, level, string(ev.Type), attrs...)
}

func (o *LoggingObserver) OnEffectFailed(ctx context.Context, eff Effect, err error, willRetry bool) {
	level := slog.LevelWarn
	if !willRetry && !eff.FireAndForget() {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "effect_failed",
		slog.String("effect", string(eff.Kind)),
		slog.String("envelope_id", eff.EnvelopeID),
		slog.String("recipient_id", eff.RecipientID),
		slog.Bool("will_retry", willRetry),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters. It implements Observer, and can be
// combined with LoggingObserver via NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	workflowsStarted   atomic.Int64
	workflowsCompleted atomic.Int64
	workflowsCancelled atomic.Int64
	stepsTriggered     atomic.Int64
	stepsCompleted     atomic.Int64
	effectFailures     atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	WorkflowsStarted   int64
	WorkflowsCompleted int64
	WorkflowsCancelled int64
	ActiveWorkflows    int64

	StepsTriggered int64
	StepsCompleted int64
	EffectFailures int64
}

func (m *BasicMetrics) OnWorkflowEvent(ctx context.Context, wf *Workflow, ev WorkflowEvent) {
	switch ev.Type {
	case EventWorkflowStarted:
		m.workflowsStarted.Add(1)
	case EventWorkflowCompleted:
		m.workflowsCompleted.Add(1)
	case EventWorkflowCancelled:
		m.workflowsCancelled.Add(1)
	case EventStepTriggered:
		m.stepsTriggered.Add(1)
	case EventStepCompleted:
		m.stepsCompleted.Add(1)
	}
}

func (m *BasicMetrics) OnEffectFailed(ctx context.Context, eff Effect, err error, willRetry bool) {
	m.effectFailures.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.workflowsStarted.Load()
	completed := m.workflowsCompleted.Load()
	cancelled := m.workflowsCancelled.Load()

	return BasicMetricsSnapshot{
		WorkflowsStarted:   started,
		WorkflowsCompleted: completed,
		WorkflowsCancelled: cancelled,
		ActiveWorkflows:    started - completed - cancelled,
		StepsTriggered:     m.stepsTriggered.Load(),
		StepsCompleted:     m.stepsCompleted.Load(),
		EffectFailures:     m.effectFailures.Load(),
	}
}
