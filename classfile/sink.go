package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Sink: Growable big-endian byte buffer
// ---------------------------------------------------------------------------

// Sink is a growable byte buffer with random-offset read and patch.
// All multi-byte values are written big-endian.
type Sink struct {
	buf []byte
}

// NewSink creates a sink with the given initial capacity.
func NewSink(capacity int) *Sink {
	return &Sink{buf: make([]byte, 0, capacity)}
}

// Len returns the number of bytes written.
func (s *Sink) Len() int {
	return len(s.buf)
}

// Append appends raw bytes.
func (s *Sink) Append(b ...byte) {
	s.buf = append(s.buf, b...)
}

// U1 appends one byte.
func (s *Sink) U1(v byte) {
	s.buf = append(s.buf, v)
}

// U2 appends a 16-bit value.
func (s *Sink) U2(v uint16) {
	s.buf = binary.BigEndian.AppendUint16(s.buf, v)
}

// U4 appends a 32-bit value.
func (s *Sink) U4(v uint32) {
	s.buf = binary.BigEndian.AppendUint32(s.buf, v)
}

// U8 appends a 64-bit value.
func (s *Sink) U8(v uint64) {
	s.buf = binary.BigEndian.AppendUint64(s.buf, v)
}

// At returns the byte at offset.
func (s *Sink) At(offset int) byte {
	return s.buf[offset]
}

// PatchU2 overwrites two bytes at offset.
func (s *Sink) PatchU2(offset int, v uint16) {
	binary.BigEndian.PutUint16(s.buf[offset:], v)
}

// PatchU4 overwrites four bytes at offset.
func (s *Sink) PatchU4(offset int, v uint32) {
	binary.BigEndian.PutUint32(s.buf[offset:], v)
}

// Truncate discards everything after the first n bytes.
func (s *Sink) Truncate(n int) {
	s.buf = s.buf[:n]
}

// Bytes returns a view of the written bytes.
func (s *Sink) Bytes() []byte {
	return s.buf
}

// WriteTo writes the buffer to out.
func (s *Sink) WriteTo(out io.Writer) (int64, error) {
	n, err := out.Write(s.buf)
	return int64(n), err
}

// ---------------------------------------------------------------------------
// Modified UTF-8
// ---------------------------------------------------------------------------

// ModifiedUTF8 encodes s the way the class-file format stores Utf8
// constants: NUL is two bytes, supplementary characters are encoded as
// surrogate pairs of three bytes each.
func ModifiedUTF8(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r == 0:
			out = append(out, 0xC0, 0x80)
		case r < 0x80:
			out = append(out, byte(r))
		case r < 0x800:
			out = append(out, 0xC0|byte(r>>6), 0x80|byte(r&0x3F))
		case r < 0x10000:
			out = append3(out, r)
		default:
			r -= 0x10000
			out = append3(out, 0xD800+(r>>10))
			out = append3(out, 0xDC00+(r&0x3FF))
		}
	}
	if len(out) > 0xFFFF {
		return nil, fmt.Errorf("utf8 constant too long (%d bytes)", len(out))
	}
	return out, nil
}

func append3(out []byte, r rune) []byte {
	return append(out, 0xE0|byte(r>>12), 0x80|byte((r>>6)&0x3F), 0x80|byte(r&0x3F))
}

// DecodeModifiedUTF8 is the inverse of ModifiedUTF8.
func DecodeModifiedUTF8(b []byte) string {
	runes := make([]rune, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			runes = append(runes, rune(c))
			i++
		case c&0xE0 == 0xC0 && i+1 < len(b):
			runes = append(runes, rune(c&0x1F)<<6|rune(b[i+1]&0x3F))
			i += 2
		case i+2 < len(b):
			runes = append(runes, rune(c&0x0F)<<12|rune(b[i+1]&0x3F)<<6|rune(b[i+2]&0x3F))
			i += 3
		default:
			runes = append(runes, utf8.RuneError)
			i++
		}
	}
	// Recombine surrogate pairs
	out := make([]rune, 0, len(runes))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r >= 0xD800 && r < 0xDC00 && i+1 < len(runes) && runes[i+1] >= 0xDC00 && runes[i+1] < 0xE000 {
			out = append(out, 0x10000+(r-0xD800)<<10+(runes[i+1]-0xDC00))
			i++
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
