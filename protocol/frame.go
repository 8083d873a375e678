package protocol

import (
	"bytes"
	"errors"
	"sync/atomic"
)

var (
	ErrNeedMore     = errors.New("incomplete frame")
	ErrFrameLength  = errors.New("invalid frame length")
	ErrFrameSync    = errors.New("missing frame sync byte")
	ErrFrameCRC     = errors.New("frame CRC mismatch")
	ErrFrameTooLong = errors.New("payload does not fit in one frame")
)

// AppendFrame wraps payload with header, CRC and sync byte and appends the
// result to dst.
func AppendFrame(dst []byte, seq uint8, payload []byte) ([]byte, error) {
	n := MessageHeaderSize + len(payload) + MessageTrailerSize
	if n > MessageLengthMax {
		return dst, ErrFrameTooLong
	}

	start := len(dst)
	dst = append(dst, uint8(n), seq)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, byte(crc>>8), byte(crc), MessageValueSync), nil
}

// ParseFrame decodes the frame at the start of data and returns it with the
// number of bytes it occupies. ErrNeedMore means the frame is not complete yet;
// any other error means the stream has lost sync.
func ParseFrame(data []byte) (Message, int, error) {
	if len(data) < MessageLengthMin {
		return Message{}, 0, ErrNeedMore
	}

	n := int(data[MessagePositionLen])
	if n < MessageLengthMin || n > MessageLengthMax {
		return Message{}, 0, ErrFrameLength
	}
	if len(data) < n {
		return Message{}, 0, ErrNeedMore
	}
	if data[n-MessageTrailerSync] != MessageValueSync {
		return Message{}, 0, ErrFrameSync
	}

	crc := uint16(data[n-MessageTrailerCRC])<<8 | uint16(data[n-MessageTrailerCRC+1])
	if crc != CRC16(data[:n-MessageTrailerSize]) {
		return Message{}, 0, ErrFrameCRC
	}

	payload := make([]byte, n-MessageLengthMin)
	copy(payload, data[MessageHeaderSize:n-MessageTrailerSize])

	return Message{
		Length:   uint8(n),
		Sequence: data[MessagePositionSeq],
		Payload:  payload,
		CRC:      crc,
	}, n, nil
}

// frameScanner splits a byte stream into frames and tracks whether the stream
// is currently synchronized. Both ends of the link use it.
type frameScanner struct {
	desynced atomic.Bool
}

func (s *frameScanner) synchronized() bool {
	return !s.desynced.Load()
}

func (s *frameScanner) setSynchronized(v bool) {
	s.desynced.Store(!v)
}

// scan consumes as many complete frames from data as it can and returns the
// byte count consumed. onResync runs when a sync byte ends a desync period.
// A frame rejected by onFrame drops the stream out of sync.
func (s *frameScanner) scan(data []byte, onResync func(), onFrame func(Message) bool) int {
	total := len(data)

	for len(data) > 0 {
		if !s.synchronized() {
			i := bytes.IndexByte(data, MessageValueSync)
			if i < 0 {
				data = data[len(data):]
				break
			}
			data = data[i+1:]
			s.setSynchronized(true)
			if onResync != nil {
				onResync()
			}
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		msg, n, err := ParseFrame(data)
		if errors.Is(err, ErrNeedMore) {
			break
		}
		if err != nil {
			s.setSynchronized(false)
			continue
		}

		data = data[n:]
		if !onFrame(msg) {
			s.setSynchronized(false)
		}
	}

	return total - len(data)
}
