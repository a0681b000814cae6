// Package sse decodes the streamed completion body returned by the chat
// backend: an arbitrarily chunked UTF-8 byte stream of "\n"-separated lines,
// where lines of interest start with "data: " and carry either a JSON delta
// record or the terminal "[DONE]" sentinel.
//
// The pipeline for each chunk read from the transport is:
//
//	┌─────────┐   ┌──────────┐   ┌────────────┐   ┌──────────────┐
//	│ Decoder │──▶│LineFramer│──▶│ ParseLine  │──▶│ result text  │
//	└─────────┘   └──────────┘   └────────────┘   └──────────────┘
//	  bytes→text    text→lines     line→Event       fragments
//
// Assembler.Run drives the pipeline against an io.Reader.
package sse

// Kind classifies a parsed line.
type Kind int

const (
	// KindSkip is a line with no content of interest: a non-data line, a
	// comment or keep-alive, or a record without a delta content field.
	KindSkip Kind = iota

	// KindTerminal is the "[DONE]" sentinel.
	KindTerminal

	// KindPayload carries a delta fragment to append to the answer.
	KindPayload

	// KindMalformed is a data line whose payload is not a JSON record.
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindSkip:
		return "skip"
	case KindTerminal:
		return "terminal"
	case KindPayload:
		return "payload"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Event is the parsed form of one line of the stream.
type Event struct {
	Kind Kind

	// Data is the payload with the "data: " marker and surrounding
	// whitespace removed. Empty for skipped non-data lines.
	Data string

	// Fragment is the choices[0].delta.content text (KindPayload only).
	Fragment string

	// FinishReason is choices[0].finish_reason when the record carries one.
	FinishReason string

	// Model is the model name reported by the record, if any.
	Model string

	// Usage is the token accounting block, usually only on the last record.
	Usage *Usage

	// Err is a *DecodeError for KindMalformed.
	Err error
}

// Usage is the OpenAI-compatible token accounting block.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
