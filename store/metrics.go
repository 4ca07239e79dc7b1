package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports gateway telemetry. A nil *Metrics records nothing.
type Metrics struct {
	retries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the gateway metrics on reg, prometheus.DefaultRegisterer if nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	retries, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradeledger",
		Subsystem: "store",
		Name:      "retries_total",
		Help:      "Retries of store operations after a transient failure.",
	}, []string{"op"}))
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tradeledger",
		Subsystem: "store",
		Name:      "operation_seconds",
		Help:      "Latency of store operations, retries included.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op", "status"}))
	if err != nil {
		return nil, err
	}
	return &Metrics{retries: retries, duration: duration}, nil
}

// register registers c, or returns the collector already registered under the same name.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register store metric: %w", err)
	}
	return c, nil
}

func (m *Metrics) retried(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

func (m *Metrics) observe(op, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(op, status).Observe(d.Seconds())
}
