package client

import (
	"log"
	"strings"
	"time"

	"github.com/jxsl13/udprtt/protocol"
)

const (
	DefaultHandshakeTimeout = time.Second
	DefaultRequestTimeout   = 100 * time.Millisecond
	DefaultMaxAttempts      = 3
	DefaultRequests         = 12
)

// DefaultFiller is the payload of every data request.
var DefaultFiller = strings.Repeat("A", protocol.PacketPayloadSize)

type options struct {
	handshakeTimeout time.Duration
	requestTimeout   time.Duration
	maxAttempts      int
	requests         uint16
	retransmit       bool
	tos              int
	filler           string
	logger           *log.Logger
}

func defaultOptions() options {
	return options{
		handshakeTimeout: DefaultHandshakeTimeout,
		requestTimeout:   DefaultRequestTimeout,
		maxAttempts:      DefaultMaxAttempts,
		requests:         DefaultRequests,
		retransmit:       true,
		filler:           DefaultFiller,
		logger:           Logger,
	}
}

type Option func(*options)

// WithHandshakeTimeout sets how long connect and release wait for their acknowledgement
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) {
		o.handshakeTimeout = d
	}
}

// WithRequestTimeout sets how long a single attempt waits for a data reply
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		o.requestTimeout = d
	}
}

// WithMaxAttempts sets the number of attempts per sequence number
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		o.maxAttempts = n
	}
}

// WithRequests sets the sequence number at which the transfer phase ends
func WithRequests(n uint16) Option {
	return func(o *options) {
		o.requests = n
	}
}

// WithRetransmit decides whether every attempt resends the request (true)
// or only waits again for a reply to the first transmission (false).
func WithRetransmit(retransmit bool) Option {
	return func(o *options) {
		o.retransmit = retransmit
	}
}

// WithTOS marks outgoing IPv4 packets with the type of service byte tos
func WithTOS(tos int) Option {
	return func(o *options) {
		o.tos = tos
	}
}

// WithFiller sets the payload of the data requests
func WithFiller(payload string) Option {
	return func(o *options) {
		o.filler = payload
	}
}

// WithLogger sets the event log of the session
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
