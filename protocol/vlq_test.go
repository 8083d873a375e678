package protocol

import (
	"bytes"
	"testing"
)

func TestVLQEncodeDecodeInt(t *testing.T) {
	testCases := []int32{
		0, 1, -1, 31, -32, 95, 96, 127, -127, 128, -128,
		4095, 12287, 12288, -4096, -4097,
		65535, -65535, 1000000, -1000000,
		1<<30 - 1, -1 << 31,
	}

	for _, expected := range testCases {
		encoded := AppendVLQ(nil, expected)

		data := encoded
		decoded, err := DecodeVLQInt(&data)
		if err != nil {
			t.Errorf("Failed to decode VLQ for value %d: %v", expected, err)
			continue
		}
		if decoded != expected {
			t.Errorf("VLQ mismatch: expected %d, got %d (encoded as %v)", expected, decoded, encoded)
		}
		if len(data) != 0 {
			t.Errorf("VLQ decode left %d bytes for value %d", len(data), expected)
		}
	}
}

func TestVLQEncodingLength(t *testing.T) {
	testCases := []struct {
		value int32
		size  int
	}{
		{0, 1},
		{95, 1},
		{-32, 1},
		{96, 2},
		{-33, 2},
		{12287, 2},
		{12288, 3},
		{-1000000, 4},
		{-524288, 3},
		{1<<30 - 1, 5},
		{-1 << 31, 5},
	}

	for _, tc := range testCases {
		if got := len(AppendVLQ(nil, tc.value)); got != tc.size {
			t.Errorf("value %d: expected %d bytes, got %d", tc.value, tc.size, got)
		}
	}
}

func TestVLQOutputBuffer(t *testing.T) {
	output := NewScratchOutput()
	EncodeVLQInt(output, -4500)
	EncodeVLQUint(output, 240000)

	want := AppendVLQ(AppendVLQ(nil, -4500), 240000)
	if !bytes.Equal(output.Result(), want) {
		t.Fatalf("expected %v, got %v", want, output.Result())
	}

	data := output.Result()
	a, _ := DecodeVLQInt(&data)
	b, _ := DecodeVLQUint(&data)
	if a != -4500 || b != 240000 {
		t.Errorf("expected -4500/240000, got %d/%d", a, b)
	}
}

func TestVLQBytesAndStrings(t *testing.T) {
	output := NewScratchOutput()
	EncodeVLQBytes(output, []byte{0xFF, 0x00, 0x7E})
	EncodeVLQString(output, "servo")
	EncodeVLQBytes(output, nil)

	data := output.Result()
	b, err := DecodeVLQBytes(&data)
	if err != nil || !bytes.Equal(b, []byte{0xFF, 0x00, 0x7E}) {
		t.Fatalf("bytes round trip failed: %v %v", b, err)
	}
	s, err := DecodeVLQString(&data)
	if err != nil || s != "servo" {
		t.Fatalf("string round trip failed: %q %v", s, err)
	}
	empty, err := DecodeVLQBytes(&data)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty bytes round trip failed: %v %v", empty, err)
	}
}

func TestVLQBufferTooSmall(t *testing.T) {
	data := []byte{0x80}
	if _, err := DecodeVLQInt(&data); err != ErrBufferTooSmall {
		t.Errorf("Expected ErrBufferTooSmall, got %v", err)
	}
	if len(data) != 1 {
		t.Errorf("failed decode must not advance the slice")
	}

	var empty []byte
	if _, err := DecodeVLQInt(&empty); err != ErrBufferTooSmall {
		t.Errorf("Expected ErrBufferTooSmall on empty input, got %v", err)
	}

	short := append(AppendVLQ(nil, 3), 'a')
	if _, err := DecodeVLQBytes(&short); err != ErrBufferTooSmall {
		t.Errorf("Expected ErrBufferTooSmall for truncated bytes, got %v", err)
	}
}

func TestVLQTooLong(t *testing.T) {
	data := []byte{0x81, 0x81, 0x81, 0x81, 0x81, 0x01}
	if _, err := DecodeVLQInt(&data); err != ErrInvalidVLQ {
		t.Errorf("Expected ErrInvalidVLQ, got %v", err)
	}
}
