package protocol

const (
	// PacketVersion is the only protocol version tag that is sent.
	PacketVersion byte = 2

	PacketSequenceSize  = 2
	PacketVersionSize   = 1
	PacketTimestampSize = 8
	PacketPayloadSize   = 192

	// PacketSize is the exact size of every datagram on the wire.
	PacketSize = PacketSequenceSize + PacketVersionSize + PacketTimestampSize + PacketPayloadSize

	// ControlSequence is the sequence number reserved for control packets.
	ControlSequence uint16 = 0

	// TimestampLayout renders the wall clock as HH:MM:SS.
	TimestampLayout = "15:04:05"

	// ResponsePayload is the fixed payload of every data reply.
	ResponsePayload = "Response data"

	// MaxDatagramSize is the receive buffer size, larger than PacketSize
	// so that oversized datagrams are detected instead of truncated.
	MaxDatagramSize = 2048
)
