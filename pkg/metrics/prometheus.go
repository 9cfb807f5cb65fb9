// Package metrics exports workflow activity as Prometheus metrics.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/petrijr/envroute/pkg/api"
)

const namespace = "envroute"

// PrometheusObserver counts workflow events and effect failures.
type PrometheusObserver struct {
	events          *prometheus.CounterVec
	effectFailures  *prometheus.CounterVec
	activeWorkflows prometheus.Gauge
}

var _ api.Observer = (*PrometheusObserver)(nil)

// NewPrometheusObserver registers its collectors on reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_events_total",
			Help:      "Committed workflow transitions by event type and routing type.",
		}, []string{"event", "routing_type"}),
		effectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "effect_failures_total",
			Help:      "Failed post-commit effect deliveries.",
		}, []string{"effect", "will_retry"}),
		activeWorkflows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_workflows",
			Help:      "Workflows started and not yet completed or cancelled by this process.",
		}),
	}
	for _, c := range []prometheus.Collector{o.events, o.effectFailures, o.activeWorkflows} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *PrometheusObserver) OnWorkflowEvent(ctx context.Context, wf *api.Workflow, ev api.WorkflowEvent) {
	var rt string
	if wf != nil {
		rt = string(wf.RoutingType)
	}
	o.events.WithLabelValues(string(ev.Type), rt).Inc()

	switch ev.Type {
	case api.EventWorkflowStarted:
		o.activeWorkflows.Inc()
	case api.EventWorkflowCompleted:
		o.activeWorkflows.Dec()
	case api.EventWorkflowCancelled:
		// Only workflows that had started count as active.
		if wf != nil && wf.StartedAt != nil {
			o.activeWorkflows.Dec()
		}
	}
}

func (o *PrometheusObserver) OnEffectFailed(ctx context.Context, eff api.Effect, err error, willRetry bool) {
	retry := "false"
	if willRetry {
		retry = "true"
	}
	o.effectFailures.WithLabelValues(string(eff.Kind), retry).Inc()
}
