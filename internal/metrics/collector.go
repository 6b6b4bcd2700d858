package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds the engine's prometheus metrics.
type Collector struct {
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec

	nodeTotal    *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec

	tokensUsed  *prometheus.CounterVec
	suspensions prometheus.Counter

	logger *zap.Logger
}

// NewCollector creates a collector registered on reg. A nil reg uses the
// default registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.dispatchTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Total workflow dispatch calls by terminal status",
		},
		[]string{"status"},
	)
	c.dispatchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Workflow dispatch duration",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)
	c.nodeTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Total node executions by type and status",
		},
		[]string{"node_type", "status"},
	)
	c.nodeDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Node execution duration by type",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"node_type"},
	)
	c.tokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_used_total",
			Help:      "Tokens consumed by model and direction",
		},
		[]string{"model", "direction"},
	)
	c.suspensions = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interactive_suspensions_total",
			Help:      "Runs suspended at an interactive node",
		},
	)

	return c
}

// ObserveDispatch records one dispatch call.
func (c *Collector) ObserveDispatch(status string, seconds float64) {
	c.dispatchTotal.WithLabelValues(status).Inc()
	c.dispatchDuration.WithLabelValues(status).Observe(seconds)
	if status == "suspended" {
		c.suspensions.Inc()
	}
}

// ObserveNode records one node execution.
func (c *Collector) ObserveNode(nodeType, status string, seconds float64) {
	c.nodeTotal.WithLabelValues(nodeType, status).Inc()
	c.nodeDuration.WithLabelValues(nodeType).Observe(seconds)
}

// AddTokens records token consumption for a model.
func (c *Collector) AddTokens(model string, input, output int) {
	if model == "" {
		model = "unknown"
	}
	if input > 0 {
		c.tokensUsed.WithLabelValues(model, "input").Add(float64(input))
	}
	if output > 0 {
		c.tokensUsed.WithLabelValues(model, "output").Add(float64(output))
	}
}
