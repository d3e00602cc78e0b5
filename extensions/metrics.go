package extensions

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pumped-fn/pipeflow"
)

const metricsNamespace = "pipeflow"

// MetricsExtension exports Prometheus metrics about evaluations, cache
// lookups and compute engine runs.
type MetricsExtension struct {
	pipeflow.BaseExtension

	// EvaluationsTotal counts chain evaluations.
	// Labels: pipeline, status (success, pending, error)
	EvaluationsTotal *prometheus.CounterVec

	// StageAppliesTotal counts stage applications.
	// Labels: stage
	StageAppliesTotal *prometheus.CounterVec

	// CacheLookupsTotal counts cache lookups.
	// Labels: level (chain, node, decoration, stage), result (hit, miss)
	CacheLookupsTotal *prometheus.CounterVec

	// ErrorsTotal counts reported stage errors.
	// Labels: stage
	ErrorsTotal *prometheus.CounterVec

	// ComputeDurationSeconds measures compute engine runs.
	// Labels: stage, outcome (ok, error)
	ComputeDurationSeconds *prometheus.HistogramVec
}

// NewMetricsExtension registers the collectors with reg. A nil reg creates
// unregistered collectors.
func NewMetricsExtension(reg prometheus.Registerer) *MetricsExtension {
	factory := promauto.With(reg)
	return &MetricsExtension{
		BaseExtension: pipeflow.NewBaseExtension("metrics"),
		EvaluationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "evaluations_total",
			Help:      "Total number of pipeline chain evaluations by status",
		}, []string{"pipeline", "status"}),
		StageAppliesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stage_apply_total",
			Help:      "Total number of stage applications",
		}, []string{"stage"}),
		CacheLookupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_lookups_total",
			Help:      "Total number of cache lookups by level and result",
		}, []string{"level", "result"}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stage_errors_total",
			Help:      "Total number of stage errors",
		}, []string{"stage"}),
		ComputeDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "compute_duration_seconds",
			Help:      "Duration of compute engine runs",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage", "outcome"}),
	}
}

func (e *MetricsExtension) Wrap(ctx context.Context, next func() (any, error), op *pipeflow.Operation) (any, error) {
	switch op.Kind {
	case pipeflow.OpApply:
		e.StageAppliesTotal.WithLabelValues(op.StageName).Inc()
		return next()
	case pipeflow.OpCompute:
		start := time.Now()
		result, err := next()
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		e.ComputeDurationSeconds.WithLabelValues(op.StageName, outcome).Observe(time.Since(start).Seconds())
		return result, err
	case pipeflow.OpEvaluate:
		result, err := next()
		status := "error"
		if state, ok := result.(pipeflow.FlowState); ok && err == nil {
			status = state.Status().Kind.String()
		}
		e.EvaluationsTotal.WithLabelValues(op.Pipeline, status).Inc()
		return result, err
	default:
		return next()
	}
}

func (e *MetricsExtension) OnCacheLookup(op *pipeflow.Operation, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	e.CacheLookupsTotal.WithLabelValues(string(op.Level), result).Inc()
}

func (e *MetricsExtension) OnError(err error, op *pipeflow.Operation) {
	e.ErrorsTotal.WithLabelValues(op.StageName).Inc()
}
