package ferresdb

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Request outcome labels.
const (
	outcomeSuccess         = "success"
	outcomeClientError     = "client_error"
	outcomeServerError     = "server_error"
	outcomeConnectionError = "connection_error"
)

// metrics holds the client's collectors. They are always live so call sites need
// no nil checks; they are only exported when a Registerer is supplied.
type metrics struct {
	requests *prometheus.CounterVec
	retries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	frames   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ferresdb",
				Subsystem: "client",
				Name:      "requests_total",
				Help:      "HTTP request attempts by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ferresdb",
				Subsystem: "client",
				Name:      "retries_total",
				Help:      "HTTP request retries by method",
			},
			[]string{"method"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ferresdb",
				Subsystem: "client",
				Name:      "request_duration_seconds",
				Help:      "HTTP request attempt latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ferresdb",
				Subsystem: "stream",
				Name:      "frames_total",
				Help:      "Streaming frames by direction and type",
			},
			[]string{"direction", "type"},
		),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.requests, err = register(reg, m.requests); err != nil {
		return nil, err
	}
	if m.retries, err = register(reg, m.retries); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.frames, err = register(reg, m.frames); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, reusing the existing collector when several clients
// share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// outcomeFor labels a failed attempt.
func outcomeFor(err *Error) string {
	switch {
	case err.Kind == KindConnection:
		return outcomeConnectionError
	case err.StatusCode >= 500:
		return outcomeServerError
	default:
		return outcomeClientError
	}
}
