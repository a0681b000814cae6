package sse

import "strings"

// LineFramer splits a growing text buffer into complete "\n"-terminated
// lines. The unterminated trailing fragment is retained until more text
// arrives.
type LineFramer struct {
	remainder string
}

// NewLineFramer returns an empty LineFramer.
func NewLineFramer() *LineFramer {
	return &LineFramer{}
}

// Feed appends text to the retained fragment and returns every complete line
// in order, without their trailing newline. The last segment, which may be
// empty, becomes the new remainder.
func (f *LineFramer) Feed(text string) []string {
	if text == "" {
		return nil
	}

	buf := f.remainder + text
	last := strings.LastIndexByte(buf, '\n')
	if last < 0 {
		f.remainder = buf
		return nil
	}

	f.remainder = buf[last+1:]
	return strings.Split(buf[:last], "\n")
}

// Remainder returns the retained, not yet terminated fragment.
func (f *LineFramer) Remainder() string {
	return f.remainder
}

// Discard clears and returns the retained fragment. At stream end this is a
// truncated trailing line, which transports commonly leave unterminated.
func (f *LineFramer) Discard() string {
	rem := f.remainder
	f.remainder = ""
	return rem
}

// Reset clears the retained fragment.
func (f *LineFramer) Reset() {
	f.remainder = ""
}
