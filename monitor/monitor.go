package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Logger is the default logger of the monitor.
var Logger = log.New(os.Stderr, "", log.LstdFlags)

// Monitor exposes the dispatcher metrics and its live event feed over http.
//
//	/metrics  prometheus text format
//	/events   websocket, one JSON encoded event per message
type Monitor struct {
	hub     *Hub
	handler http.Handler
	logger  *log.Logger
}

// New creates a monitor for the metrics in gatherer.
// The returned Hub is to be passed to the dispatcher as its event sink.
func New(gatherer prometheus.Gatherer, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = Logger
	}
	hub := NewHub(DefaultBacklog, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/events", hub.ServeWs)

	return &Monitor{
		hub:     hub,
		handler: mux,
		logger:  logger,
	}
}

func (m *Monitor) Hub() *Hub {
	return m.hub
}

// Handler returns the http handler of the monitor endpoints.
func (m *Monitor) Handler() http.Handler {
	return m.handler
}

// ListenAndServe serves the monitor on address until ctx is done.
func (m *Monitor) ListenAndServe(ctx context.Context, address string) error {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	return m.Serve(ctx, l)
}

// Serve runs the event hub and serves http on l until ctx is done.
func (m *Monitor) Serve(ctx context.Context, l net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go m.hub.Run(ctx)

	srv := &http.Server{
		Handler:           m.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	m.logger.Printf("Monitor listening on %s\n", l.Addr())
	err := srv.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}
	return err
}
