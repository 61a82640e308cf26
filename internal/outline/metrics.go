package outline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "outliner"

// Metrics counts outline requests by result and failure class.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the outline collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "outline",
				Name:      "requests_total",
				Help:      "Total number of outline requests",
			},
			[]string{"result", "class"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "outline",
				Name:      "duration_seconds",
				Help:      "Outline generation duration in seconds, retries included",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"provider"},
		),
	}
}

func (m *Metrics) observe(providerName string, class Class, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.requests.WithLabelValues(result, string(class)).Inc()
	if providerName == "" {
		providerName = "none"
	}
	m.duration.WithLabelValues(providerName).Observe(elapsed.Seconds())
}
