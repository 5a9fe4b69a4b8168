package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tedge_operations"

// Recorder receives engine events.
type Recorder interface {
	RecordAction(action, workflow string)
	RecordDecodeError(code string)
	RecordScript(script string, duration time.Duration, failed bool)
	RecordPublish(failed bool)
	RecordTransition(workflow, status string)
}

// Nop discards every event.
type Nop struct{}

func (Nop) RecordAction(string, string)              {}
func (Nop) RecordDecodeError(string)                 {}
func (Nop) RecordScript(string, time.Duration, bool) {}
func (Nop) RecordPublish(bool)                       {}
func (Nop) RecordTransition(string, string)          {}

// Prometheus exports engine events as prometheus collectors.
type Prometheus struct {
	actions        *prometheus.CounterVec
	decodeErrors   *prometheus.CounterVec
	scriptDuration *prometheus.HistogramVec
	scriptFailures *prometheus.CounterVec
	publishes      *prometheus.CounterVec
	transitions    *prometheus.CounterVec
}

// NewPrometheus registers the collectors on reg; nil uses the default registerer.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Prometheus{
		actions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Resolved actions by kind and workflow",
			},
			[]string{"action", "workflow"},
		),
		decodeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decode_errors_total",
				Help:      "Dropped transport messages by error code",
			},
			[]string{"code"},
		),
		scriptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "script_duration_seconds",
				Help:      "Duration of workflow script runs in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"script"},
		),
		scriptFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "script_failures_total",
				Help:      "Workflow script runs that did not exit cleanly",
			},
			[]string{"script"},
		),
		publishes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publishes_total",
				Help:      "Operation snapshots published by result",
			},
			[]string{"result"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Resolved operation snapshots by workflow and status",
			},
			[]string{"workflow", "status"},
		),
	}
}

func (p *Prometheus) RecordAction(action, workflow string) {
	p.actions.WithLabelValues(action, workflow).Inc()
}

func (p *Prometheus) RecordDecodeError(code string) {
	if code == "" {
		code = "unknown"
	}
	p.decodeErrors.WithLabelValues(code).Inc()
}

func (p *Prometheus) RecordScript(script string, duration time.Duration, failed bool) {
	p.scriptDuration.WithLabelValues(script).Observe(duration.Seconds())
	if failed {
		p.scriptFailures.WithLabelValues(script).Inc()
	}
}

func (p *Prometheus) RecordPublish(failed bool) {
	result := "ok"
	if failed {
		result = "error"
	}
	p.publishes.WithLabelValues(result).Inc()
}

func (p *Prometheus) RecordTransition(workflow, status string) {
	p.transitions.WithLabelValues(workflow, status).Inc()
}
