package server

import (
	"net/netip"
	"time"
)

// EventKind names the decision that was taken for a single packet.
type EventKind string

const (
	EventSynAck    EventKind = "syn-ack"
	EventConnected EventKind = "connected"
	EventFinAck    EventKind = "fin-ack"
	EventReleased  EventKind = "released"
	EventDropped   EventKind = "dropped"
	EventReplied   EventKind = "replied"
	EventMalformed EventKind = "malformed"
)

// Event describes how the dispatcher handled one inbound datagram.
type Event struct {
	Time     time.Time      `json:"time"`
	Remote   netip.AddrPort `json:"remote"`
	Kind     EventKind      `json:"kind"`
	Sequence uint16         `json:"sequence"`
	Delay    time.Duration  `json:"delay,omitempty"`
}

// EventSink receives dispatcher events.
// Publish is called from the packet handlers and must not block.
type EventSink interface {
	Publish(Event)
}
