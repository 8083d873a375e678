package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestCRC16Empty(t *testing.T) {
	if got := CRC16(nil); got != 0xFFFF {
		t.Errorf("CRC16 of empty input should be the init value, got 0x%04X", got)
	}
}

func TestCRC16CheckValue(t *testing.T) {
	if got := CRC16([]byte("123456789")); got != 0x6F91 {
		t.Errorf("expected check value 0x6F91, got 0x%04X", got)
	}
}

func TestCRC16DetectsChange(t *testing.T) {
	a := CRC16([]byte{0x01, 0x02, 0x03})
	b := CRC16([]byte{0x01, 0x02, 0x04})
	if a == b {
		t.Errorf("CRC16 collision: both inputs produced %04X", a)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	payload := AppendVLQ(AppendVLQ(nil, 7), -4500)

	frame, err := AppendFrame(nil, 0x13, payload)
	if err != nil {
		t.Fatalf("AppendFrame failed: %v", err)
	}
	if int(frame[0]) != len(frame) {
		t.Errorf("length byte %d does not match frame size %d", frame[0], len(frame))
	}
	if frame[len(frame)-1] != MessageValueSync {
		t.Errorf("frame must end with sync byte")
	}

	msg, n, err := ParseFrame(frame)
	if err != nil {
		t.Fatalf("ParseFrame failed: %v", err)
	}
	if n != len(frame) {
		t.Errorf("expected %d bytes consumed, got %d", len(frame), n)
	}
	if msg.Sequence != 0x13 {
		t.Errorf("expected sequence 0x13, got 0x%02x", msg.Sequence)
	}
	if !bytes.Equal(msg.Payload, payload) {
		t.Errorf("payload mismatch: %v vs %v", msg.Payload, payload)
	}
}

func TestParseFrameErrors(t *testing.T) {
	good, _ := AppendFrame(nil, MessageDest, []byte{1, 2, 3})

	if _, _, err := ParseFrame(good[:4]); !errors.Is(err, ErrNeedMore) {
		t.Errorf("expected ErrNeedMore for short header, got %v", err)
	}
	if _, _, err := ParseFrame(good[:len(good)-1]); !errors.Is(err, ErrNeedMore) {
		t.Errorf("expected ErrNeedMore for truncated frame, got %v", err)
	}

	badLen := append([]byte{2}, good[1:]...)
	if _, _, err := ParseFrame(badLen); !errors.Is(err, ErrFrameLength) {
		t.Errorf("expected ErrFrameLength, got %v", err)
	}

	badSync := append([]byte(nil), good...)
	badSync[len(badSync)-1] = 0x00
	if _, _, err := ParseFrame(badSync); !errors.Is(err, ErrFrameSync) {
		t.Errorf("expected ErrFrameSync, got %v", err)
	}

	badCRC := append([]byte(nil), good...)
	badCRC[2] ^= 0xFF
	if _, _, err := ParseFrame(badCRC); !errors.Is(err, ErrFrameCRC) {
		t.Errorf("expected ErrFrameCRC, got %v", err)
	}
}

func TestAppendFrameTooLong(t *testing.T) {
	if _, err := AppendFrame(nil, MessageDest, make([]byte, MessageLengthMax)); !errors.Is(err, ErrFrameTooLong) {
		t.Errorf("expected ErrFrameTooLong, got %v", err)
	}
}

func TestScannerResync(t *testing.T) {
	first, _ := AppendFrame(nil, MessageDest, []byte{1})
	second, _ := AppendFrame(nil, MessageDest|1, []byte{2})

	corrupt := append([]byte(nil), first...)
	corrupt[2] ^= 0x55

	stream := append(corrupt, second...)

	var s frameScanner
	var got []Message
	resyncs := 0
	consumed := s.scan(stream, func() { resyncs++ }, func(m Message) bool {
		got = append(got, m)
		return true
	})

	if consumed != len(stream) {
		t.Errorf("expected the whole stream to be consumed, got %d of %d", consumed, len(stream))
	}
	if resyncs != 1 {
		t.Errorf("expected one resync, got %d", resyncs)
	}
	if len(got) != 1 || got[0].Payload[0] != 2 {
		t.Fatalf("expected only the second frame to survive, got %+v", got)
	}
}
