package agent

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports loop telemetry. A nil *Metrics records nothing.
type Metrics struct {
	turns     *prometheus.CounterVec
	rounds    prometheus.Histogram
	toolCalls *prometheus.CounterVec
}

// NewMetrics registers the loop metrics on reg, prometheus.DefaultRegisterer if nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	turns, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradeledger",
		Subsystem: "agent",
		Name:      "turns_total",
		Help:      "Chat turns by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}
	rounds, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tradeledger",
		Subsystem: "agent",
		Name:      "rounds",
		Help:      "Tool rounds executed per turn.",
		Buckets:   prometheus.LinearBuckets(0, 1, 11),
	}))
	if err != nil {
		return nil, err
	}
	toolCalls, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradeledger",
		Subsystem: "agent",
		Name:      "tool_calls_total",
		Help:      "Tool executions by tool and status.",
	}, []string{"tool", "status"}))
	if err != nil {
		return nil, err
	}
	return &Metrics{turns: turns, rounds: rounds, toolCalls: toolCalls}, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register agent metric: %w", err)
	}
	return c, nil
}

func (m *Metrics) turnEnded(outcome string, rounds int) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
	m.rounds.Observe(float64(rounds))
}

func (m *Metrics) toolCalled(tool, status string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, status).Inc()
}

// label keeps the tool label set closed: unknown names are not exported verbatim.
func label(known bool, name string) string {
	if known {
		return name
	}
	return "unknown"
}
