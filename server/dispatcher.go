package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/netip"
	"os"
	"sync/atomic"
	"time"

	"github.com/jxsl13/udprtt/network"
	"github.com/jxsl13/udprtt/protocol"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Logger is the default logger of every Dispatcher that is not configured with WithLogger.
	Logger = log.New(os.Stderr, "", log.LstdFlags)

	// ErrNotServing is returned by Serve if it is called a second time.
	ErrNotServing = errors.New("dispatcher is already serving")
)

// Stats is a snapshot of the dispatcher counters.
type Stats struct {
	Received  int64 `json:"received"`
	Malformed int64 `json:"malformed"`
	Syn       int64 `json:"syn"`
	Ack       int64 `json:"ack"`
	Fin       int64 `json:"fin"`
	Data      int64 `json:"data"`
	Dropped   int64 `json:"dropped"`
	Replied   int64 `json:"replied"`
	Active    int64 `json:"active"`
}

type counters struct {
	received  atomic.Int64
	malformed atomic.Int64
	syn       atomic.Int64
	ack       atomic.Int64
	fin       atomic.Int64
	data      atomic.Int64
	dropped   atomic.Int64
	replied   atomic.Int64
	active    atomic.Int64
}

// Dispatcher answers every inbound packet independently.
// It does not keep any state per client, the socket is the only shared resource.
type Dispatcher struct {
	socket   network.NetSocket
	loss     Loss
	spawner  Spawner
	logger   *log.Logger
	registry *prometheus.Registry
	metrics  *metrics
	events   EventSink

	serving atomic.Bool
	stats   counters
}

// Listen binds a UDP socket to bindAddr (ip:port) and creates a dispatcher on top of it.
// Bind failures are returned immediately.
func Listen(bindAddr string, opts ...Option) (*Dispatcher, error) {
	sock, err := network.NewNetSocketFrom(bindAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", bindAddr, err)
	}
	return NewDispatcher(sock, opts...), nil
}

// NewDispatcher creates a dispatcher that serves on an already bound socket.
func NewDispatcher(sock network.NetSocket, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		socket: sock,
		loss:   DefaultLoss(),
		logger: Logger,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.spawner == nil {
		d.spawner = NewSpawner(0)
	}
	if d.registry == nil {
		d.registry = prometheus.NewRegistry()
	}
	d.metrics = newMetrics(d.registry)
	return d
}

// Addr returns the local address of the bound socket.
func (d *Dispatcher) Addr() netip.AddrPort {
	return d.socket.LocalAddr()
}

// Loss returns the configured loss model.
func (d *Dispatcher) Loss() Loss {
	return d.loss
}

// Registry returns the registry that contains the dispatcher metrics.
func (d *Dispatcher) Registry() *prometheus.Registry {
	return d.registry
}

// Stats returns a snapshot of the packet counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Received:  d.stats.received.Load(),
		Malformed: d.stats.malformed.Load(),
		Syn:       d.stats.syn.Load(),
		Ack:       d.stats.ack.Load(),
		Fin:       d.stats.fin.Load(),
		Data:      d.stats.data.Load(),
		Dropped:   d.stats.dropped.Load(),
		Replied:   d.stats.replied.Load(),
		Active:    d.stats.active.Load(),
	}
}

// Close closes the underlying socket, which makes Serve return.
func (d *Dispatcher) Close() error {
	return d.socket.Close()
}

// Serve reads packets until ctx is done or the dispatcher is closed.
// Every packet is handled by a separately scheduled task, Serve never waits for a reply
// to be sent before reading the next packet.
func (d *Dispatcher) Serve(ctx context.Context) error {
	if !d.serving.CompareAndSwap(false, true) {
		return ErrNotServing
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			d.socket.Close()
		case <-done:
		}
	}()

	d.logger.Printf("Server listening on %s\n", d.Addr())
	defer d.spawner.Wait()

	for {
		buf := make([]byte, protocol.MaxDatagramSize)
		n, from, err := d.socket.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			d.logger.Printf("could not read udp: %v\n", err)
			continue
		}
		d.stats.received.Add(1)

		data := buf[:n]
		err = d.spawner.Go(ctx, func() {
			d.handle(ctx, from, data)
		})
		if err != nil {
			return err
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, from netip.AddrPort, data []byte) {
	d.stats.active.Add(1)
	d.metrics.active.Inc()
	defer func() {
		d.metrics.active.Dec()
		d.stats.active.Add(-1)
	}()

	req, err := network.Decode(data)
	if err != nil {
		d.stats.malformed.Add(1)
		d.metrics.malformed.Inc()
		d.logger.Printf("Dropped packet from %s: %v\n", from, err)
		d.publish(from, EventMalformed, 0, 0)
		return
	}

	switch protocol.ControlMsg(req.Payload) {
	case protocol.CtrlMsgSyn:
		d.stats.syn.Add(1)
		d.metrics.received.WithLabelValues("syn").Inc()
		d.logger.Printf("SYN received from %s, establishing connection.\n", from)
		d.reply(from, "syn-ack", packetFrom(req, protocol.CtrlMsgSynAck))
		d.publish(from, EventSynAck, req.Sequence, 0)
	case protocol.CtrlMsgAck:
		d.stats.ack.Add(1)
		d.metrics.received.WithLabelValues("ack").Inc()
		d.logger.Printf("ACK received from %s, connection established.\n", from)
		d.publish(from, EventConnected, req.Sequence, 0)
	case protocol.CtrlMsgFin:
		d.stats.fin.Add(1)
		d.metrics.received.WithLabelValues("fin").Inc()
		d.logger.Printf("FIN received from %s, releasing connection.\n", from)
		d.reply(from, "fin-ack", packetFrom(req, protocol.CtrlMsgFinAck))
		d.publish(from, EventFinAck, req.Sequence, 0)
	case protocol.CtrlMsgEndAck:
		d.metrics.received.WithLabelValues("end-ack").Inc()
		d.logger.Printf("END-ACK received from %s, connection released.\n", from)
		d.publish(from, EventReleased, req.Sequence, 0)
	default:
		d.stats.data.Add(1)
		d.metrics.received.WithLabelValues("data").Inc()
		d.handleData(ctx, from, req)
	}
}

func (d *Dispatcher) handleData(ctx context.Context, from netip.AddrPort, req network.Packet) {
	d.logger.Printf("Received request from %s, Sequence no: %d, Request time: %s\n", from, req.Sequence, req.Timestamp)

	if d.loss.Drop() {
		d.stats.dropped.Add(1)
		d.metrics.dropped.Inc()
		d.logger.Printf("Packet loss simulated for sequence no: %d\n", req.Sequence)
		d.publish(from, EventDropped, req.Sequence, 0)
		return
	}

	delay := d.loss.Delay()
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	d.metrics.delay.Observe(delay.Seconds())

	resp := network.NewDataPacket(req.Sequence, protocol.ResponsePayload, network.Timestamp(time.Now()))
	if d.reply(from, "data", resp) {
		d.logger.Printf("Sent response to %s, Sequence no: %d\n", from, req.Sequence)
		d.publish(from, EventReplied, req.Sequence, delay)
	}
}

// reply returns true if the packet was sent
func (d *Dispatcher) reply(to netip.AddrPort, kind string, p network.Packet) bool {
	data, err := p.MarshalBinary()
	if err != nil {
		d.logger.Printf("failed to encode reply to %s: %v\n", to, err)
		return false
	}

	err = d.socket.WriteTo(to, data)
	if err != nil {
		d.logger.Printf("failed to send reply to %s: %v\n", to, err)
		return false
	}
	d.stats.replied.Add(1)
	d.metrics.replied.WithLabelValues(kind).Inc()
	return true
}

func (d *Dispatcher) publish(from netip.AddrPort, kind EventKind, seq uint16, delay time.Duration) {
	if d.events == nil {
		return
	}
	d.events.Publish(Event{
		Time:     time.Now(),
		Remote:   from,
		Kind:     kind,
		Sequence: seq,
		Delay:    delay,
	})
}

// packetFrom answers a control packet with the same sequence and timestamp.
func packetFrom(req network.Packet, msg protocol.ControlMsg) network.Packet {
	return network.Packet{
		Sequence:  req.Sequence,
		Version:   protocol.PacketVersion,
		Timestamp: req.Timestamp,
		Payload:   string(msg),
	}
}
