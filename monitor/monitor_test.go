package monitor

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jxsl13/udprtt/network"
	"github.com/jxsl13/udprtt/protocol"
	"github.com/jxsl13/udprtt/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

var discardLogger = log.New(io.Discard, "", 0)

type fixture struct {
	monitor    *Monitor
	dispatcher *server.Dispatcher
	http       *httptest.Server
}

func startMonitor(t *testing.T) *fixture {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := New(reg, discardLogger)

	d, err := server.Listen("127.0.0.1:0",
		server.WithRegistry(reg),
		server.WithEventSink(m.Hub()),
		server.WithLogger(discardLogger),
		server.WithLoss(server.Loss{Rate: 0}),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Serve(ctx)
	}()
	go m.Hub().Run(ctx)

	hs := httptest.NewServer(m.Handler())
	t.Cleanup(func() {
		hs.Close()
		cancel()
		<-done
	})

	return &fixture{
		monitor:    m,
		dispatcher: d,
		http:       hs,
	}
}

func (f *fixture) send(t *testing.T, p network.Packet) {
	t.Helper()

	conn, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(f.dispatcher.Addr()))
	require.NoError(t, err)
	defer conn.Close()

	data, err := p.MarshalBinary()
	require.NoError(t, err)
	_, err = conn.Write(data)
	require.NoError(t, err)
}

func (f *fixture) subscribe(t *testing.T) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/events"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	require.Eventually(t, func() bool {
		return f.monitor.Hub().Clients() == 1
	}, time.Second, 5*time.Millisecond)
	return ws
}

func TestMonitorEvents(t *testing.T) {
	require := require.New(t)
	f := startMonitor(t)
	ws := f.subscribe(t)

	f.send(t, network.NewControlPacket(protocol.CtrlMsgSyn, "12:00:00"))

	require.NoError(ws.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(err)

	var e server.Event
	require.NoError(json.Unmarshal(data, &e))
	require.Equal(server.EventSynAck, e.Kind)
	require.Equal(uint16(0), e.Sequence)
	require.True(e.Remote.IsValid())
}

func TestMonitorClientDisconnect(t *testing.T) {
	f := startMonitor(t)
	ws := f.subscribe(t)

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool {
		return f.monitor.Hub().Clients() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestMonitorMetrics(t *testing.T) {
	require := require.New(t)
	f := startMonitor(t)

	f.send(t, network.NewControlPacket(protocol.CtrlMsgSyn, "12:00:00"))
	require.Eventually(func() bool {
		return f.dispatcher.Stats().Replied == 1
	}, time.Second, 5*time.Millisecond)

	resp, err := http.Get(f.http.URL + "/metrics")
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(err)
	require.Contains(string(body), `udprtt_packets_received_total{kind="syn"} 1`)
	require.Contains(string(body), `udprtt_replies_sent_total{kind="syn-ack"} 1`)
}

func TestHubPublishNeverBlocks(t *testing.T) {
	hub := NewHub(2, discardLogger)

	// Run is not started, nothing drains the buffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			hub.Publish(server.Event{Kind: server.EventReplied, Sequence: uint16(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked")
	}
	require.Equal(t, int64(3), hub.Dropped())
}

func TestMonitorServe(t *testing.T) {
	m := New(prometheus.NewRegistry(), discardLogger)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- m.Serve(ctx, l)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + l.Addr().String() + "/metrics")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}
