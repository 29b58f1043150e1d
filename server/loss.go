package server

import (
	"math/rand/v2"
	"time"
)

const (
	DefaultLossRate = 0.30
	DefaultMinDelay = 10 * time.Millisecond
	DefaultMaxDelay = 50 * time.Millisecond
)

// Loss is the simulated network impairment applied to data requests.
// It is immutable once passed to a Dispatcher.
type Loss struct {
	// Rate is the probability in [0, 1] with which a data request is dropped.
	Rate float64
	// MinDelay and MaxDelay bound the uniformly sampled processing delay.
	MinDelay time.Duration
	MaxDelay time.Duration
}

// DefaultLoss drops 30% of the data requests and delays the rest by 10ms to 50ms.
func DefaultLoss() Loss {
	return Loss{
		Rate:     DefaultLossRate,
		MinDelay: DefaultMinDelay,
		MaxDelay: DefaultMaxDelay,
	}
}

// Drop draws whether a single packet is lost.
// Every call is an independent draw.
func (l Loss) Drop() bool {
	return rand.Float64() < l.Rate
}

// Delay draws a processing delay within [MinDelay, MaxDelay].
func (l Loss) Delay() time.Duration {
	span := l.MaxDelay - l.MinDelay
	if span <= 0 {
		return l.MinDelay
	}
	return l.MinDelay + rand.N(span+1)
}
