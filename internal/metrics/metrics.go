package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftflow_job_runs_total",
		Help: "Scheduled stage invocations by outcome.",
	}, []string{"job", "result"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "giftflow_job_duration_seconds",
		Help:    "Duration of scheduled stage invocations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})

	ExecutionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftflow_execution_transitions_total",
		Help: "Auto-gift execution status transitions.",
	}, []string{"from", "to"})

	OperatorAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftflow_operator_alerts_total",
		Help: "Operator alerts raised, by kind.",
	}, []string{"kind"})

	FundingShortfall = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "giftflow_funding_shortfall",
		Help: "Outstanding obligations not covered by the projected fulfillment balance.",
	})

	GatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftflow_gateway_calls_total",
		Help: "Calls to external collaborators by outcome.",
	}, []string{"gateway", "operation", "result"})
)
