package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Channel and call counters exposed on the /metrics endpoint.
var (
	EventsIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtc",
		Subsystem: "transport",
		Name:      "events_in_total",
		Help:      "Inbound events by name.",
	}, []string{"event"})

	EventsOut = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rtc",
		Subsystem: "transport",
		Name:      "events_out_total",
		Help:      "Outbound events sent over the channel.",
	})

	EventsQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rtc",
		Subsystem: "transport",
		Name:      "queue_depth",
		Help:      "Outbound events waiting for a connection.",
	})

	EventsBuffered = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rtc",
		Subsystem: "transport",
		Name:      "buffered_signals",
		Help:      "Signaling events waiting for a subscriber.",
	})

	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rtc",
		Subsystem: "transport",
		Name:      "reconnects_total",
		Help:      "Automatic reconnection attempts.",
	})

	Calls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtc",
		Subsystem: "call",
		Name:      "finished_total",
		Help:      "Finished calls by terminal phase.",
	}, []string{"phase"})
)
