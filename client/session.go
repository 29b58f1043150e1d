package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/jxsl13/udprtt/network"
	"github.com/jxsl13/udprtt/protocol"
	"golang.org/x/net/ipv4"
)

var (
	// Logger is the default event log of every session that is not configured with WithLogger.
	Logger = log.New(os.Stderr, "", log.LstdFlags)

	// ErrHandshakeTimeout is returned when no SYN-ACK or FIN-ACK arrives in time.
	ErrHandshakeTimeout = errors.New("handshake timeout")

	// ErrUnexpectedReply is returned when the handshake is answered with the wrong control message.
	ErrUnexpectedReply = errors.New("unexpected reply")

	// ErrRequestTimeout is returned when a single attempt does not receive a reply in time.
	ErrRequestTimeout = errors.New("request timeout")

	// ErrInvalidState is returned when a phase is started from the wrong state.
	ErrInvalidState = errors.New("invalid session state")
)

// Session is a single client run against one server.
// It is not safe for concurrent use, there is at most one outstanding request.
type Session struct {
	conn *net.UDPConn
	opts options

	state     protocol.ConnState
	connected bool
	sequence  uint16

	// rtt in milliseconds, one per acknowledged data request
	samples []float64
	sent    int

	start        time.Time
	end          time.Time
	firstRequest time.Time
	lastExchange time.Time

	buf []byte
}

// Dial resolves address (host:port) and creates a session for it.
// Resolution and socket errors are returned immediately.
func Dial(address string, opts ...Option) (*Session, error) {
	raddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}

	s, err := NewSession(conn, opts...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// NewSession creates a session on top of a connected udp socket.
func NewSession(conn *net.UDPConn, opts ...Option) (*Session, error) {
	if conn == nil {
		return nil, errors.New("nil UDPConn passed")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if len(o.filler) > protocol.PacketPayloadSize {
		return nil, fmt.Errorf("%w: filler has %d bytes", network.ErrFieldTooLong, len(o.filler))
	}
	if protocol.IsControlMsg(o.filler) {
		return nil, fmt.Errorf("filler must not be a control message: %s", o.filler)
	}
	if o.maxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be at least 1: %d", o.maxAttempts)
	}

	if o.tos > 0 {
		err := ipv4.NewConn(conn).SetTOS(o.tos)
		if err != nil {
			return nil, fmt.Errorf("failed to set tos %d: %w", o.tos, err)
		}
	}

	return &Session{
		conn:    conn,
		opts:    o,
		state:   protocol.ConnStateInit,
		samples: make([]float64, 0, o.requests),
		buf:     make([]byte, protocol.MaxDatagramSize),
	}, nil
}

// RemoteAddr is the address of the server.
func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *Session) State() protocol.ConnState {
	return s.state
}

// Sequence returns the sequence number of the last sent packet.
func (s *Session) Sequence() uint16 {
	return s.sequence
}

// Samples returns a copy of the recorded rtt samples in milliseconds.
func (s *Session) Samples() []float64 {
	return append([]float64(nil), s.samples...)
}

// Sent returns the number of data request attempts.
func (s *Session) Sent() int {
	return s.sent
}

// Close closes the underlying socket.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Run executes all three phases.
// A failed connect aborts the session, a failed release still returns the gathered statistics.
// The returned Summary is always valid.
func (s *Session) Run(ctx context.Context) (Summary, error) {
	s.start = time.Now()

	err := s.Connect()
	if err != nil {
		return s.finish(), err
	}

	err = s.Transfer(ctx)
	if err != nil {
		s.state = protocol.ConnStateFailed
		return s.finish(), err
	}

	err = s.Release()
	return s.finish(), err
}

func (s *Session) finish() Summary {
	s.end = time.Now()
	return s.Summary()
}

// Connect performs the SYN, SYN-ACK, ACK exchange. It is not retried.
func (s *Session) Connect() error {
	if s.state != protocol.ConnStateInit {
		return fmt.Errorf("%w: connect in state %s", ErrInvalidState, s.state)
	}
	if s.start.IsZero() {
		s.start = time.Now()
	}

	s.state = protocol.ConnStateEstablishing
	s.opts.logger.Println("Establishing connection...")

	err := s.handshake(protocol.CtrlMsgSyn, protocol.CtrlMsgSynAck)
	if err != nil {
		s.state = protocol.ConnStateFailed
		s.opts.logger.Printf("Failed to establish connection: %v\n", err)
		return fmt.Errorf("connect: %w", err)
	}

	err = s.sendControl(protocol.CtrlMsgAck)
	if err != nil {
		s.state = protocol.ConnStateFailed
		return fmt.Errorf("connect: %w", err)
	}

	s.state = protocol.ConnStateEstablished
	s.connected = true
	s.opts.logger.Println("Connection established.")
	return nil
}

// Transfer sends data requests until the sequence number reaches the configured threshold.
func (s *Session) Transfer(ctx context.Context) error {
	if s.state != protocol.ConnStateEstablished {
		return fmt.Errorf("%w: transfer in state %s", ErrInvalidState, s.state)
	}
	s.state = protocol.ConnStateTransferring

	for s.sequence < s.opts.requests {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("transfer: %w", err)
		}
		s.request()
	}
	return nil
}

// Release performs the FIN, FIN-ACK exchange.
func (s *Session) Release() error {
	if s.state != protocol.ConnStateTransferring && s.state != protocol.ConnStateEstablished {
		return fmt.Errorf("%w: release in state %s", ErrInvalidState, s.state)
	}

	s.state = protocol.ConnStateReleasing
	s.opts.logger.Println("Releasing connection...")

	err := s.handshake(protocol.CtrlMsgFin, protocol.CtrlMsgFinAck)
	if err != nil {
		s.state = protocol.ConnStateFailed
		s.opts.logger.Printf("Failed to release connection: %v\n", err)
		return fmt.Errorf("release: %w", err)
	}

	s.state = protocol.ConnStateClosed
	s.opts.logger.Println("Connection released.")
	return nil
}

// Summary computes the statistics of everything that happened so far.
func (s *Session) Summary() Summary {
	sum := Summarize(s.samples, s.sent)
	sum.State = s.state
	sum.Connected = s.connected

	if !s.firstRequest.IsZero() {
		sum.ServerResponseTime = s.lastExchange.Sub(s.firstRequest)
	}
	if !s.start.IsZero() {
		end := s.end
		if end.IsZero() {
			end = time.Now()
		}
		sum.Duration = end.Sub(s.start)
	}
	return sum
}

// request makes up to maxAttempts attempts for the next sequence number.
// Every attempt is counted as sent, only answered attempts record an rtt sample.
func (s *Session) request() {
	seq := s.nextSequence(s.opts.filler)
	p := network.NewDataPacket(seq, s.opts.filler, network.Timestamp(time.Now()))
	data, _ := p.MarshalBinary() // filler length is validated in NewSession

	if s.firstRequest.IsZero() {
		s.firstRequest = time.Now()
	}
	defer func() {
		s.lastExchange = time.Now()
	}()

	matchSequence := func(reply *network.Packet) bool {
		return reply.Sequence == seq && !reply.IsControl()
	}

	for attempt := 1; attempt <= s.opts.maxAttempts; attempt++ {
		started := time.Now()
		if attempt == 1 || s.opts.retransmit {
			err := s.write(data)
			if err != nil {
				s.opts.logger.Printf("Sequence no: %d, failed to send request (Attempt %d): %v\n", seq, attempt, err)
			}
		}
		s.sent++

		reply, receivedAt, err := s.await(started.Add(s.opts.requestTimeout), matchSequence)
		if err != nil {
			s.opts.logger.Printf("Sequence no: %d, Request timed out (Attempt %d): %v\n", seq, attempt, err)
			continue
		}

		rtt := float64(receivedAt.Sub(started)) / float64(time.Millisecond)
		s.samples = append(s.samples, rtt)
		s.opts.logger.Printf("Sequence no: %d, Server: %s, RTT: %.2f ms, Server Time: %s\n", reply.Sequence, s.RemoteAddr(), rtt, reply.Timestamp)
		return
	}
}

// handshake sends msg and waits for the expected control message.
// Data replies that arrive late are skipped.
func (s *Session) handshake(msg, expected protocol.ControlMsg) error {
	err := s.sendControl(msg)
	if err != nil {
		return err
	}

	reply, _, err := s.await(time.Now().Add(s.opts.handshakeTimeout), (*network.Packet).IsControl)
	if errors.Is(err, ErrRequestTimeout) {
		return ErrHandshakeTimeout
	} else if err != nil {
		return err
	}

	if reply.ControlMsg() != expected {
		return fmt.Errorf("%w: expected %s, got %s", ErrUnexpectedReply, expected, reply.Payload)
	}
	return nil
}

// await reads until a packet is accepted by match or the deadline passes.
// Malformed datagrams and rejected packets do not end the wait.
func (s *Session) await(deadline time.Time, match func(*network.Packet) bool) (network.Packet, time.Time, error) {
	err := s.conn.SetReadDeadline(deadline)
	if err != nil {
		return network.Packet{}, time.Time{}, err
	}

	for {
		n, err := s.conn.Read(s.buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return network.Packet{}, time.Time{}, ErrRequestTimeout
			}
			return network.Packet{}, time.Time{}, err
		}
		receivedAt := time.Now()

		reply, err := network.Decode(s.buf[:n])
		if err != nil {
			s.opts.logger.Printf("Ignored reply: %v\n", err)
			continue
		}
		if !match(&reply) {
			s.opts.logger.Printf("Ignored stale reply: %s\n", reply.String())
			continue
		}
		return reply, receivedAt, nil
	}
}

func (s *Session) sendControl(msg protocol.ControlMsg) error {
	s.nextSequence(string(msg))
	p := network.NewControlPacket(msg, network.Timestamp(time.Now()))
	data, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	return s.write(data)
}

func (s *Session) write(data []byte) error {
	n, err := s.conn.Write(data)
	if err != nil {
		return err
	} else if n != len(data) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(data))
	}
	return nil
}

// nextSequence resets the sequence number for control messages
// and increments it for everything else.
func (s *Session) nextSequence(payload string) uint16 {
	if protocol.IsControlMsg(payload) {
		s.sequence = protocol.ControlSequence
	} else {
		s.sequence++
	}
	return s.sequence
}
