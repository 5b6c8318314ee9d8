package relay

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeDelivered   = "delivered"
	outcomeOffline     = "offline"
	outcomeMalformed   = "malformed"
	outcomeRateLimited = "rate_limited"
)

type Metrics struct {
	connections prometheus.Gauge
	accepted    prometheus.Counter
	rejected    prometheus.Counter
	evictions   prometheus.Counter
	frames      *prometheus.CounterVec
}

// NewMetrics registers the relay collectors on reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "privly_relay_connections",
			Help: "Number of live relay connections",
		}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "privly_relay_accepted_connections_total",
			Help: "Number of accepted relay connections",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "privly_relay_rejected_connections_total",
			Help: "Number of connections rejected for a missing identity",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "privly_relay_evictions_total",
			Help: "Number of connections replaced by a newer connection of the same identity",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "privly_relay_frames_total",
			Help: "Number of inbound frames by outcome",
		}, []string{"outcome"}),
	}

	if reg != nil {
		reg.MustRegister(m.connections, m.accepted, m.rejected, m.evictions, m.frames)
	}
	return m
}
