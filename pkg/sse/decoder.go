package sse

import (
	"strings"
	"unicode/utf8"
)

// Decoder incrementally decodes a UTF-8 byte stream that arrives in
// arbitrarily split chunks. A chunk may end in the middle of a multi-byte
// character: those trailing bytes are held back and prepended to the next
// chunk.
type Decoder struct {
	tail     []byte
	replaced int
}

// NewDecoder returns a Decoder with no held bytes.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode returns the text for every complete character in the held tail plus
// chunk. Bytes that can never start or continue a character are replaced
// with U+FFFD one byte at a time, which keeps the output independent of
// where the input was split.
func (d *Decoder) Decode(chunk []byte) string {
	buf := chunk
	if len(d.tail) > 0 {
		buf = append(d.tail, chunk...)
		d.tail = nil
	}

	cut := incompleteTail(buf)
	if cut < len(buf) {
		d.tail = append([]byte(nil), buf[cut:]...)
		buf = buf[:cut]
	}

	if utf8.Valid(buf) {
		return string(buf)
	}

	var sb strings.Builder
	sb.Grow(len(buf))
	for len(buf) > 0 {
		r, size := utf8.DecodeRune(buf)
		if r == utf8.RuneError && size == 1 {
			d.replaced++
		}
		sb.WriteRune(r)
		buf = buf[size:]
	}
	return sb.String()
}

// Flush ends the stream. Held bytes that never completed a character are
// dropped and reported as a *DecodeError wrapping ErrTruncatedRune.
func (d *Decoder) Flush() error {
	if len(d.tail) == 0 {
		return nil
	}

	tail := d.tail
	d.tail = nil
	return &DecodeError{Data: string(tail), Err: ErrTruncatedRune}
}

// Pending reports how many bytes are currently held back.
func (d *Decoder) Pending() int {
	return len(d.tail)
}

// Replaced reports how many invalid bytes were replaced with U+FFFD.
func (d *Decoder) Replaced() int {
	return d.replaced
}

// Reset drops held bytes and counters.
func (d *Decoder) Reset() {
	d.tail = nil
	d.replaced = 0
}

// incompleteTail returns the index where a legal but unfinished character
// begins at the end of buf, or len(buf) when buf ends on a boundary.
func incompleteTail(buf []byte) int {
	limit := max(len(buf)-(utf8.UTFMax-1), 0)
	for i := len(buf) - 1; i >= limit; i-- {
		if !utf8.RuneStart(buf[i]) {
			continue
		}
		if utf8.FullRune(buf[i:]) {
			return len(buf)
		}
		return i
	}
	return len(buf)
}
