package sse

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncatedRune is returned when the stream ends while a multi-byte
	// character is still incomplete.
	ErrTruncatedRune = errors.New("stream ended mid-character")

	// ErrInvalidUTF8 is reported when bytes that can never form a character
	// were replaced with U+FFFD.
	ErrInvalidUTF8 = errors.New("invalid UTF-8 sequence")

	// ErrMalformedPayload is reported when a complete "data: " line does not
	// carry a decodable JSON record.
	ErrMalformedPayload = errors.New("malformed event payload")

	// ErrStreamCancelled is returned when the caller's context is done before
	// the stream finished.
	ErrStreamCancelled = errors.New("stream cancelled")
)

// DecodeError describes malformed bytes or framing found in the stream.
type DecodeError struct {
	// Data is the offending input, either raw bytes or the stripped payload.
	Data string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Data == "" {
		return "decode: " + e.Err.Error()
	}
	return fmt.Sprintf("decode: %v: %q", e.Err, e.Data)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// StreamError is returned by Assembler.Run when the stream could not be read
// to completion. Partial text is kept for diagnostics only.
type StreamError struct {
	Partial string
	Err     error
}

func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d bytes): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}
