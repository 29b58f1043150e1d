package console

import (
	"context"
	"log"
	"time"
)

type ServerOption func(*Server)

// WithServerLogger sets the logger of the console server
func WithServerLogger(l *log.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

type Option func(*Conn)

// WithContext sets the context for the connection.
// Reconnect attempts stop once it is done.
func WithContext(ctx context.Context) Option {
	return func(c *Conn) {
		c.ctx = ctx
	}
}

// WithReconnectDelay sets the minimum and maximum delay between reconnects
func WithReconnectDelay(minDelay, maxDelay time.Duration) Option {
	return func(c *Conn) {
		c.minReconnectDelay = minDelay
		c.maxReconnectDelay = maxDelay
	}
}

// WithReconnectRetries sets the number of reconnect attempts, a negative value retries forever
func WithReconnectRetries(retries int) Option {
	return func(c *Conn) {
		c.reconnectRetries = retries
	}
}
