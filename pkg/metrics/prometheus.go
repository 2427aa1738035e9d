// Package metrics exports workflow instance events as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/petrijr/flowstate/pkg/api"
)

const namespace = "flowstate"

// PrometheusObserver is an api.Observer that counts instance events.
type PrometheusObserver struct {
	instancesCreated    prometheus.Counter
	transitions         *prometheus.CounterVec
	transitionsRejected *prometheus.CounterVec
	instancesTerminal   *prometheus.CounterVec
}

var _ api.Observer = (*PrometheusObserver)(nil)

// NewPrometheusObserver creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &PrometheusObserver{
		instancesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_created_total",
			Help:      "Total number of workflow instances created",
		}),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Total number of applied state transitions",
			},
			[]string{"operation", "from", "to"},
		),
		transitionsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_rejected_total",
				Help:      "Total number of operations rejected as invalid transitions",
			},
			[]string{"operation", "state"},
		),
		instancesTerminal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "instances_terminal_total",
				Help:      "Total number of instances that reached a terminal state",
			},
			[]string{"state"},
		),
	}

	for _, c := range []prometheus.Collector{
		o.instancesCreated,
		o.transitions,
		o.transitionsRejected,
		o.instancesTerminal,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *PrometheusObserver) OnInstanceCreated(ctx context.Context, inst *api.WorkflowInstance) {
	o.instancesCreated.Inc()
}

func (o *PrometheusObserver) OnTransition(ctx context.Context, inst *api.WorkflowInstance, rec api.TransitionRecord) {
	o.transitions.WithLabelValues(string(rec.Operation), string(rec.From), string(rec.To)).Inc()
	if inst.Table().IsTerminal(rec.To) {
		o.instancesTerminal.WithLabelValues(string(rec.To)).Inc()
	}
}

func (o *PrometheusObserver) OnTransitionRejected(ctx context.Context, inst *api.WorkflowInstance, op api.Operation, err error) {
	o.transitionsRejected.WithLabelValues(string(op), string(inst.CurrentState())).Inc()
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
