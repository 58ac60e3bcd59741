package bridge

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// request outcomes.
const (
	outcomeOK        = "ok"
	outcomeError     = "error"
	outcomeAborted   = "aborted"
	outcomeTransport = "transport"
)

type metrics struct {
	requests   *prometheus.CounterVec
	latency    prometheus.Histogram
	queueDepth prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "armcore_ik_requests_total",
				Help: "Total number of ik requests resolved by the bridge",
			},
			[]string{"outcome"}, // outcome: ok, error, aborted, transport
		),
		latency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "armcore_ik_solve_duration_seconds",
				Help:    "ik solve duration in seconds, measured inside the worker",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "armcore_ik_queue_depth",
				Help: "Number of ik requests waiting for the worker",
			},
		),
	}
	if reg == nil {
		return m, nil
	}
	var err error
	if m.requests, err = register(reg, m.requests); err != nil {
		return nil, err
	}
	if m.latency, err = register(reg, m.latency); err != nil {
		return nil, err
	}
	if m.queueDepth, err = register(reg, m.queueDepth); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, or returns the collector already registered under the same name.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return c, err
}

func (m *metrics) recordOutcome(err error) {
	outcome := outcomeOK
	switch {
	case err == nil:
	case errors.Is(err, ErrAborted):
		outcome = outcomeAborted
	case IsWorkerTransportError(err):
		outcome = outcomeTransport
	default:
		outcome = outcomeError
	}
	m.requests.WithLabelValues(outcome).Inc()
}
