package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Job is the Pushgateway job mailtree pushes under.
const Job = "mailtree"

// Pusher sends everything gathered from a registry to a Pushgateway.
// Each process pushes under its own instance label so concurrent Lambda
// environments do not overwrite one another.
type Pusher struct {
	pusher *push.Pusher
}

// NewPusher creates a Pusher for the Pushgateway at url.
func NewPusher(url, instance string, g prometheus.Gatherer) *Pusher {
	return &Pusher{
		pusher: push.New(url, Job).Grouping("instance", instance).Gatherer(g),
	}
}

// Push replaces this instance's metrics on the Pushgateway with the
// current values.
func (p *Pusher) Push(ctx context.Context) error {
	return p.pusher.PushContext(ctx)
}
