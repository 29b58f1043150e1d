package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	received  *prometheus.CounterVec
	replied   *prometheus.CounterVec
	malformed prometheus.Counter
	dropped   prometheus.Counter
	active    prometheus.Gauge
	delay     prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		received: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "udprtt_packets_received_total",
				Help: "Total number of decoded packets by kind",
			},
			[]string{"kind"},
		),
		replied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "udprtt_replies_sent_total",
				Help: "Total number of replies by kind",
			},
			[]string{"kind"},
		),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "udprtt_packets_malformed_total",
			Help: "Total number of datagrams that could not be decoded",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "udprtt_packets_dropped_total",
			Help: "Total number of data requests dropped by the simulated loss",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "udprtt_handlers_active",
			Help: "Number of packets currently being handled",
		}),
		delay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "udprtt_processing_delay_seconds",
			Help:    "Simulated processing delay of data replies in seconds",
			Buckets: prometheus.LinearBuckets(0.005, 0.005, 12),
		}),
	}

	reg.MustRegister(
		m.received,
		m.replied,
		m.malformed,
		m.dropped,
		m.active,
		m.delay,
	)
	return m
}
