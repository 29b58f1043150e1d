package server

import (
	"context"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jxsl13/udprtt/network"
	"github.com/jxsl13/udprtt/protocol"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var discardLogger = log.New(io.Discard, "", 0)

func startDispatcher(t *testing.T, opts ...Option) *Dispatcher {
	t.Helper()

	opts = append([]Option{WithLogger(discardLogger)}, opts...)
	d, err := Listen("127.0.0.1:0", opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- d.Serve(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		require.ErrorIs(t, <-errc, context.Canceled)
	})
	return d
}

func dial(t *testing.T, d *Dispatcher) *net.UDPConn {
	t.Helper()
	conn, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(d.Addr()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *net.UDPConn, p network.Packet) {
	t.Helper()
	data, err := p.MarshalBinary()
	require.NoError(t, err)
	_, err = conn.Write(data)
	require.NoError(t, err)
}

// receive returns false if nothing arrived within timeout
func receive(t *testing.T, conn *net.UDPConn, timeout time.Duration) (network.Packet, bool) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))

	buf := make([]byte, protocol.MaxDatagramSize)
	n, err := conn.Read(buf)
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return network.Packet{}, false
	}
	require.NoError(t, err)

	p, err := network.Decode(buf[:n])
	require.NoError(t, err)
	return p, true
}

// settle waits until every started handler has returned
func settle(t *testing.T, d *Dispatcher) {
	t.Helper()
	require.Eventually(t, func() bool {
		return d.Stats().Active == 0
	}, time.Second, 5*time.Millisecond)
}

func TestDispatcherSyn(t *testing.T) {
	require := require.New(t)
	d := startDispatcher(t)
	conn := dial(t, d)

	send(t, conn, network.Packet{Sequence: 0, Version: protocol.PacketVersion, Timestamp: "11:22:33", Payload: "SYN"})

	resp, ok := receive(t, conn, time.Second)
	require.True(ok)
	require.Equal(string(protocol.CtrlMsgSynAck), resp.Payload)
	require.Equal(uint16(0), resp.Sequence)
	require.Equal("11:22:33", resp.Timestamp)
	require.Equal(protocol.PacketVersion, resp.Version)
}

func TestDispatcherSynKeepsSequence(t *testing.T) {
	d := startDispatcher(t)
	conn := dial(t, d)

	send(t, conn, network.Packet{Sequence: 77, Version: protocol.PacketVersion, Timestamp: "01:02:03", Payload: "SYN"})

	resp, ok := receive(t, conn, time.Second)
	require.True(t, ok)
	require.Equal(t, uint16(77), resp.Sequence)
	require.Equal(t, "01:02:03", resp.Timestamp)
}

func TestDispatcherFin(t *testing.T) {
	require := require.New(t)
	d := startDispatcher(t)
	conn := dial(t, d)

	send(t, conn, network.NewControlPacket(protocol.CtrlMsgFin, "23:00:01"))

	resp, ok := receive(t, conn, time.Second)
	require.True(ok)
	require.Equal(string(protocol.CtrlMsgFinAck), resp.Payload)
	require.Equal(uint16(0), resp.Sequence)
	require.Equal("23:00:01", resp.Timestamp)
	require.Equal(int64(1), d.Stats().Fin)
}

func TestDispatcherAckHasNoReply(t *testing.T) {
	d := startDispatcher(t)
	conn := dial(t, d)

	send(t, conn, network.NewControlPacket(protocol.CtrlMsgAck, "12:00:00"))
	send(t, conn, network.NewControlPacket(protocol.CtrlMsgEndAck, "12:00:00"))

	_, ok := receive(t, conn, 200*time.Millisecond)
	require.False(t, ok)
	require.Equal(t, int64(1), d.Stats().Ack)
	require.Zero(t, d.Stats().Replied)
}

func TestDispatcherDataReply(t *testing.T) {
	require := require.New(t)
	d := startDispatcher(t, WithLoss(Loss{Rate: 0, MinDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}))
	conn := dial(t, d)

	send(t, conn, network.NewDataPacket(5, strings.Repeat("A", protocol.PacketPayloadSize), "10:00:00"))

	resp, ok := receive(t, conn, time.Second)
	require.True(ok)
	require.Equal(uint16(5), resp.Sequence)
	require.Equal(protocol.ResponsePayload, resp.Payload)
	require.Len(resp.Timestamp, protocol.PacketTimestampSize)

	settle(t, d)
	stats := d.Stats()
	require.Equal(int64(1), stats.Data)
	require.Equal(int64(1), stats.Replied)
	require.Zero(stats.Dropped)
	require.Equal(float64(1), testutil.ToFloat64(d.metrics.replied.WithLabelValues("data")))
}

func TestDispatcherDataDropped(t *testing.T) {
	d := startDispatcher(t, WithLoss(Loss{Rate: 1}))
	conn := dial(t, d)

	for seq := uint16(1); seq <= 5; seq++ {
		send(t, conn, network.NewDataPacket(seq, "payload", "10:00:00"))
	}

	_, ok := receive(t, conn, 200*time.Millisecond)
	require.False(t, ok)
	require.Equal(t, int64(5), d.Stats().Dropped)
	require.Equal(t, float64(5), testutil.ToFloat64(d.metrics.dropped))
}

func TestDispatcherMalformed(t *testing.T) {
	d := startDispatcher(t)
	conn := dial(t, d)

	_, err := conn.Write([]byte("SYN"))
	require.NoError(t, err)

	_, ok := receive(t, conn, 200*time.Millisecond)
	require.False(t, ok)
	require.Equal(t, int64(1), d.Stats().Malformed)
	require.Equal(t, int64(1), d.Stats().Received)
}

func TestDispatcherConcurrentClients(t *testing.T) {
	d := startDispatcher(t, WithLoss(Loss{Rate: 0, MinDelay: 20 * time.Millisecond, MaxDelay: 20 * time.Millisecond}), WithMaxHandlers(4))

	const clients = 8
	conns := make([]*net.UDPConn, 0, clients)
	for i := 0; i < clients; i++ {
		conn := dial(t, d)
		send(t, conn, network.NewDataPacket(uint16(i+1), "req", "10:00:00"))
		conns = append(conns, conn)
	}

	for i, conn := range conns {
		resp, ok := receive(t, conn, 2*time.Second)
		require.True(t, ok)
		require.Equal(t, uint16(i+1), resp.Sequence)
	}

	settle(t, d)
	require.Equal(t, int64(clients), d.Stats().Replied)
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) kinds() []EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]EventKind, 0, len(s.events))
	for _, e := range s.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func TestDispatcherEvents(t *testing.T) {
	sink := &recordingSink{}
	d := startDispatcher(t, WithEventSink(sink), WithLoss(Loss{Rate: 0, MinDelay: 10 * time.Millisecond, MaxDelay: 10 * time.Millisecond}))
	conn := dial(t, d)

	send(t, conn, network.NewControlPacket(protocol.CtrlMsgSyn, "12:00:00"))
	_, ok := receive(t, conn, time.Second)
	require.True(t, ok)

	send(t, conn, network.NewDataPacket(1, "req", "12:00:00"))
	_, ok = receive(t, conn, time.Second)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return len(sink.kinds()) == 2
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, []EventKind{EventSynAck, EventReplied}, sink.kinds())
}

func TestDispatcherServeTwice(t *testing.T) {
	d := startDispatcher(t)
	require.Eventually(t, d.serving.Load, time.Second, time.Millisecond)
	require.ErrorIs(t, d.Serve(context.Background()), ErrNotServing)
}

func TestListenBindFailure(t *testing.T) {
	d := startDispatcher(t)
	_, err := Listen(d.Addr().String(), WithLogger(discardLogger))
	require.Error(t, err)
}
