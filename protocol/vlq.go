package protocol

import "errors"

var (
	ErrInvalidVLQ     = errors.New("invalid VLQ encoding")
	ErrBufferTooSmall = errors.New("buffer too small for VLQ")
)

// AppendVLQ appends the variable-length encoding of v. Each byte carries seven
// bits, most significant group first; the top bit flags a continuation. The
// encoding is biased so small negative numbers stay short.
func AppendVLQ(dst []byte, v int32) []byte {
	for shift := 28; shift >= 7; shift -= 7 {
		lim := int32(1) << (shift - 2)
		if v < -lim || v >= 3*lim {
			dst = append(dst, byte((v>>shift)&0x7F)|0x80)
		}
	}
	return append(dst, byte(v&0x7F))
}

// EncodeVLQInt writes a signed integer to output.
func EncodeVLQInt(output OutputBuffer, v int32) {
	var buf [5]byte
	output.Output(AppendVLQ(buf[:0], v))
}

// EncodeVLQUint writes an unsigned integer to output.
func EncodeVLQUint(output OutputBuffer, v uint32) {
	EncodeVLQInt(output, int32(v))
}

// DecodeVLQInt reads a signed integer and advances data past it.
func DecodeVLQInt(data *[]byte) (int32, error) {
	buf := *data
	if len(buf) == 0 {
		return 0, ErrBufferTooSmall
	}

	c := uint32(buf[0])
	v := c & 0x7F
	if c&0x60 == 0x60 {
		v |= ^uint32(0x1F)
	}

	i := 1
	for c&0x80 != 0 {
		if i >= len(buf) {
			return 0, ErrBufferTooSmall
		}
		if i >= 5 {
			return 0, ErrInvalidVLQ
		}
		c = uint32(buf[i])
		v = v<<7 | c&0x7F
		i++
	}

	*data = buf[i:]
	return int32(v), nil
}

// DecodeVLQUint reads an unsigned integer and advances data past it.
func DecodeVLQUint(data *[]byte) (uint32, error) {
	v, err := DecodeVLQInt(data)
	return uint32(v), err
}

// EncodeVLQBytes writes a length-prefixed byte string.
func EncodeVLQBytes(output OutputBuffer, b []byte) {
	EncodeVLQUint(output, uint32(len(b)))
	output.Output(b)
}

// DecodeVLQBytes reads a length-prefixed byte string. The result aliases data.
func DecodeVLQBytes(data *[]byte) ([]byte, error) {
	n, err := DecodeVLQUint(data)
	if err != nil {
		return nil, err
	}
	if uint32(len(*data)) < n {
		return nil, ErrBufferTooSmall
	}
	b := (*data)[:n]
	*data = (*data)[n:]
	return b, nil
}

// EncodeVLQString writes a length-prefixed string.
func EncodeVLQString(output OutputBuffer, s string) {
	EncodeVLQBytes(output, []byte(s))
}

// DecodeVLQString reads a length-prefixed string.
func DecodeVLQString(data *[]byte) (string, error) {
	b, err := DecodeVLQBytes(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
