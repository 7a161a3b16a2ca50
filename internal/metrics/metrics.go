// Package metrics publishes batch timings to Prometheus.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jacentio/mailtree/creation"
)

// Sink is a creation.MetricsSink backed by a Prometheus histogram
// labelled by timer name.
type Sink struct {
	durations *prometheus.HistogramVec
}

// NewSink registers the duration histogram with reg. A nil reg uses
// prometheus.DefaultRegisterer. Registering twice against the same registry
// reuses the collector already registered.
func NewSink(reg prometheus.Registerer) (*Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mailtree",
		Name:      "batch_duration_seconds",
		Help:      "Duration of mailbox batch operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"timer"})

	if err := reg.Register(durations); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, err
		}
		durations = existing
	}

	return &Sink{durations: durations}, nil
}

// StartTimer starts timing one batch under name.
func (s *Sink) StartTimer(name string) creation.Timer {
	return prometheus.NewTimer(s.durations.WithLabelValues(name))
}
