package link

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the link's Prometheus collectors.
type Metrics struct {
	Sent        prometheus.Counter
	Dropped     prometheus.Counter
	WriteErrors prometheus.Counter
	Connected   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Sent: f.NewCounter(prometheus.CounterOpts{
			Name: "mousefwd_link_packets_sent_total",
			Help: "Delta packets written to the serial port.",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "mousefwd_link_packets_dropped_total",
			Help: "Delta samples dropped because the send queue was full.",
		}),
		WriteErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "mousefwd_link_write_errors_total",
			Help: "Serial write failures that closed the link.",
		}),
		Connected: f.NewGauge(prometheus.GaugeOpts{
			Name: "mousefwd_link_connected",
			Help: "1 while a serial port is open.",
		}),
	}
}
