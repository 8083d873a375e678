// Package protocol implements the framed serial protocol spoken between the
// servostep host and the actuator firmware: VLQ-encoded command payloads
// wrapped in length/sequence headers with a CRC16 trailer and sync byte.
package protocol

// Version is reported in the firmware dictionary.
const Version = "servostep-0.3.0"

// Frame layout: [len][seq][payload...][crc_hi][crc_lo][sync]
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E

	// Host sequences live in 0x10-0x1F.
	MessageDest    = 0x10
	MessageSeqMask = 0x0F

	// ScratchMax bounds a single encoded payload before framing.
	ScratchMax = 512
)

// Bootstrap command IDs. Everything else is resolved through the dictionary.
const (
	CmdIdentifyResponse = 0
	CmdIdentify         = 1
)

// Message is one parsed frame.
type Message struct {
	Length   uint8
	Sequence uint8
	Payload  []byte
	CRC      uint16
}

// IsAck reports whether the frame carries no payload, which is how ACK and
// NAK frames are sent.
func (m Message) IsAck() bool {
	return len(m.Payload) == 0
}

// NextSequence returns the host sequence that follows seq.
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
