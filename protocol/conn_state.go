package protocol

import "fmt"

// ConnState is the lifecycle state of a client session.
// Closed and Failed are terminal.
type ConnState int

const (
	ConnStateInit         ConnState = 0
	ConnStateEstablishing ConnState = 1
	ConnStateEstablished  ConnState = 2
	ConnStateTransferring ConnState = 3
	ConnStateReleasing    ConnState = 4
	ConnStateClosed       ConnState = 5
	ConnStateFailed       ConnState = 6
)

func (s ConnState) String() string {
	switch s {
	case ConnStateInit:
		return "INIT"
	case ConnStateEstablishing:
		return "ESTABLISHING"
	case ConnStateEstablished:
		return "ESTABLISHED"
	case ConnStateTransferring:
		return "TRANSFERRING"
	case ConnStateReleasing:
		return "RELEASING"
	case ConnStateClosed:
		return "CLOSED"
	case ConnStateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal returns true for states a session never leaves.
func (s ConnState) Terminal() bool {
	return s == ConnStateClosed || s == ConnStateFailed
}
