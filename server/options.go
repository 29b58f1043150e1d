package server

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
)

type Option func(*Dispatcher)

// WithLoss sets the simulated loss and latency
func WithLoss(loss Loss) Option {
	return func(d *Dispatcher) {
		d.loss = loss
	}
}

// WithMaxHandlers limits the number of concurrently handled packets, 0 means unbounded
func WithMaxHandlers(limit int) Option {
	return func(d *Dispatcher) {
		d.spawner = NewSpawner(limit)
	}
}

// WithSpawner replaces the task spawner
func WithSpawner(s Spawner) Option {
	return func(d *Dispatcher) {
		d.spawner = s
	}
}

// WithLogger sets the logger of the dispatcher
func WithLogger(l *log.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithRegistry registers the dispatcher metrics in reg instead of a private registry
func WithRegistry(reg *prometheus.Registry) Option {
	return func(d *Dispatcher) {
		d.registry = reg
	}
}

// WithEventSink forwards every handling decision to sink
func WithEventSink(sink EventSink) Option {
	return func(d *Dispatcher) {
		d.events = sink
	}
}
