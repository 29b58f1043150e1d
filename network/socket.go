package network

import (
	"net"
	"net/netip"
)

// NilNetSocket is the zero value of an unitialized NetSocket.
var NilNetSocket NetSocket

// NetSocket is a bound UDP socket.
// Reading is meant to be done by a single goroutine, writing may happen concurrently.
type NetSocket struct {
	socket *net.UDPConn
}

// NewNetSocketFrom parses an ip:port string and binds a socket to it.
func NewNetSocketFrom(bindAddr string) (NetSocket, error) {
	ap, err := netip.ParseAddrPort(bindAddr)
	if err != nil {
		return NilNetSocket, err
	}

	return NewNetSocket(ap)
}

// NewNetSocket creates a new UDP socket that is bound to bindAddrPort.
// In case the port is 0, the operating system will assign a random port.
func NewNetSocket(bindAddrPort netip.AddrPort) (sock NetSocket, err error) {
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(bindAddrPort))
	if err != nil {
		return NilNetSocket, err
	}

	defer func() {
		if err != nil {
			conn.Close()
		}
	}()

	const receiveSize = 65536
	err = conn.SetReadBuffer(receiveSize)
	if err != nil {
		return NilNetSocket, err
	}

	return NetSocket{
		socket: conn,
	}, nil
}

func (s NetSocket) IsValid() bool {
	return s.socket != nil
}

// LocalAddr returns the address the socket is bound to.
func (s NetSocket) LocalAddr() netip.AddrPort {
	return s.socket.LocalAddr().(*net.UDPAddr).AddrPort()
}

func (s *NetSocket) Close() error {
	return s.socket.Close()
}

// WriteTo sends a single datagram to addr.
// It is safe to be called from multiple goroutines.
func (s *NetSocket) WriteTo(addr netip.AddrPort, data []byte) error {
	var (
		sent = 0
		l    = len(data)
	)
	for sent < l {
		n, err := s.socket.WriteToUDPAddrPort(data[sent:], addr)
		if err != nil {
			return err
		}
		sent += n
	}
	return nil
}

func (s *NetSocket) ReadFrom(buf []byte) (n int, addr netip.AddrPort, err error) {
	return s.socket.ReadFromUDPAddrPort(buf)
}
