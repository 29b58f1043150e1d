package protocol

// ControlMsg is one of the handshake and teardown literals carried in the payload field.
type ControlMsg string

const (
	CtrlMsgSyn    ControlMsg = "SYN"
	CtrlMsgAck    ControlMsg = "ACK"
	CtrlMsgSynAck ControlMsg = "SYN-ACK"
	CtrlMsgFin    ControlMsg = "FIN"
	CtrlMsgFinAck ControlMsg = "FIN-ACK"

	// CtrlMsgEndAck is sent by some peers after FIN-ACK to mark a completed teardown.
	// It is not one of the control literals and is only logged by the server.
	CtrlMsgEndAck ControlMsg = "END-ACK"
)

var controlMsgs = [...]ControlMsg{
	CtrlMsgSyn,
	CtrlMsgAck,
	CtrlMsgSynAck,
	CtrlMsgFin,
	CtrlMsgFinAck,
}

// IsControlMsg returns true if the payload text is exactly one of the control literals.
func IsControlMsg(payload string) bool {
	for _, msg := range controlMsgs {
		if string(msg) == payload {
			return true
		}
	}
	return false
}
