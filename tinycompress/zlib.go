// Package tinycompress writes zlib streams built from stored DEFLATE
// blocks. Any zlib reader accepts them, and the encoder needs no tables or
// window, so it fits in microcontroller firmware.
package tinycompress

import "hash/adler32"

const (
	// MaxStoredBlock is the largest payload of one stored block.
	MaxStoredBlock = 0xFFFF

	storedHeaderLen = 5
)

// zlibHeader is CMF/FLG for deflate with a 32K window, default level.
var zlibHeader = [2]byte{0x78, 0x9C}

// Zlib wraps data in a zlib stream without compressing it.
func Zlib(data []byte) []byte {
	blocks := (len(data) + MaxStoredBlock - 1) / MaxStoredBlock
	if blocks == 0 {
		blocks = 1
	}
	out := make([]byte, 0, len(zlibHeader)+blocks*storedHeaderLen+len(data)+4)
	out = append(out, zlibHeader[:]...)

	rest := data
	for {
		n := len(rest)
		if n > MaxStoredBlock {
			n = MaxStoredBlock
		}
		out = appendStoredBlock(out, rest[:n], n == len(rest))
		rest = rest[n:]
		if len(rest) == 0 {
			break
		}
	}

	sum := adler32.Checksum(data)
	return append(out, byte(sum>>24), byte(sum>>16), byte(sum>>8), byte(sum))
}

// appendStoredBlock writes BFINAL/BTYPE=00, then LEN and NLEN little endian.
func appendStoredBlock(out, block []byte, final bool) []byte {
	header := byte(0x00)
	if final {
		header = 0x01
	}
	length := uint16(len(block))
	nlength := ^length
	out = append(out, header,
		byte(length), byte(length>>8),
		byte(nlength), byte(nlength>>8))
	return append(out, block...)
}
