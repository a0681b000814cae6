package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/papercomputeco/chatchain/pkg/logger"
)

const defaultChunkSize = 32 * 1024

// Result is the outcome of one Assembler.Run.
type Result struct {
	// Text is every delta fragment concatenated in arrival order.
	Text string

	// Done reports whether the "[DONE]" sentinel was observed. A stream that
	// ends at EOF without the sentinel still yields its text.
	Done bool

	FinishReason string
	Model        string
	Usage        *Usage

	// Warnings holds recoverable problems found while decoding: malformed
	// payload lines, replaced invalid bytes, a truncated final character.
	Warnings []error
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithChunkSize sets the size of each transport read.
func WithChunkSize(n int) AssemblerOption {
	return func(a *Assembler) {
		if n > 0 {
			a.chunkSize = n
		}
	}
}

// WithFragmentHandler registers fn to be called with every delta fragment
// as soon as it is decoded, e.g. to echo tokens to a terminal.
func WithFragmentHandler(fn func(fragment string)) AssemblerOption {
	return func(a *Assembler) {
		a.onFragment = fn
	}
}

// WithStrict makes a malformed payload line fail the stream instead of
// being recorded as a warning.
func WithStrict(strict bool) AssemblerOption {
	return func(a *Assembler) {
		a.strict = strict
	}
}

// WithLogger sets the logger used for stream diagnostics.
func WithLogger(l *slog.Logger) AssemblerOption {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

// Assembler reads a streamed completion body and reassembles the answer.
// It keeps no per-stream state, so one Assembler may serve concurrent Run
// calls.
type Assembler struct {
	chunkSize  int
	strict     bool
	onFragment func(string)
	logger     *slog.Logger
}

// NewAssembler returns an Assembler configured with opts.
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		chunkSize: defaultChunkSize,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// With returns a copy of a with opts applied on top.
func (a *Assembler) With(opts ...AssemblerOption) *Assembler {
	cp := *a
	for _, opt := range opts {
		opt(&cp)
	}
	return &cp
}

// streamState is owned by exactly one Run call.
type streamState struct {
	decoder *Decoder
	framer  *LineFramer
	text    strings.Builder
	result  Result
}

// Run reads body one chunk at a time until EOF or the terminal sentinel,
// whichever comes first, and returns the assembled answer. A read failure or
// cancelled ctx yields a *StreamError and no Result. Run does not close body.
func (a *Assembler) Run(ctx context.Context, body io.Reader) (*Result, error) {
	st := &streamState{
		decoder: NewDecoder(),
		framer:  NewLineFramer(),
	}
	buf := make([]byte, a.chunkSize)
	chunks := 0

	for !st.result.Done {
		if err := ctx.Err(); err != nil {
			return nil, a.cancelled(st, err)
		}

		n, err := body.Read(buf)
		if n > 0 {
			chunks++
			if cerr := a.consume(st, buf[:n]); cerr != nil {
				return nil, &StreamError{Partial: st.text.String(), Err: cerr}
			}
		}

		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, a.cancelled(st, ctxErr)
			}
			return nil, &StreamError{Partial: st.text.String(), Err: err}
		}
	}

	if !st.result.Done {
		if rem := st.framer.Discard(); rem != "" {
			a.logger.Debug("discarding unterminated trailing line", "line", rem)
		}
		if err := st.decoder.Flush(); err != nil {
			st.warn(a.logger, err)
		}
	}

	if n := st.decoder.Replaced(); n > 0 {
		st.warn(a.logger, &DecodeError{
			Err: fmt.Errorf("%w: %d byte(s) replaced", ErrInvalidUTF8, n),
		})
	}

	st.result.Text = st.text.String()
	a.logger.Debug("stream assembled",
		"chunks", chunks,
		"bytes", len(st.result.Text),
		"done", st.result.Done,
		"warnings", len(st.result.Warnings),
	)

	return &st.result, nil
}

// consume pushes one transport chunk through the decoder, framer and parser.
// Once the terminal sentinel is seen the remaining lines are not appended.
func (a *Assembler) consume(st *streamState, chunk []byte) error {
	for _, line := range st.framer.Feed(st.decoder.Decode(chunk)) {
		ev := ParseLine(line)

		if ev.Model != "" {
			st.result.Model = ev.Model
		}
		if ev.FinishReason != "" {
			st.result.FinishReason = ev.FinishReason
		}
		if ev.Usage != nil {
			st.result.Usage = ev.Usage
		}

		switch ev.Kind {
		case KindTerminal:
			st.result.Done = true
			return nil

		case KindPayload:
			st.text.WriteString(ev.Fragment)
			if a.onFragment != nil && ev.Fragment != "" {
				a.onFragment(ev.Fragment)
			}

		case KindMalformed:
			if a.strict {
				return ev.Err
			}
			st.warn(a.logger, ev.Err)

		case KindSkip:
		}
	}

	return nil
}

func (a *Assembler) cancelled(st *streamState, cause error) error {
	return &StreamError{
		Partial: st.text.String(),
		Err:     fmt.Errorf("%w: %w", ErrStreamCancelled, cause),
	}
}

func (st *streamState) warn(l *slog.Logger, err error) {
	l.Warn("stream decode problem", "error", err)
	st.result.Warnings = append(st.result.Warnings, err)
}
