// Package eventstream defines the events chatchain emits after each answered
// turn and the publishers that ship them to an event stream.
package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnCompleted is emitted after an answer was streamed for a chain.
	EventTypeTurnCompleted = "chatchain.turn.completed"
)

// TurnCompletedEvent is a transport-neutral event payload for one answered
// turn: the chain as it was sent plus the streamed answer.
type TurnCompletedEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	Chain         string      `json:"chain"`
	Stream        StreamMeta  `json:"stream"`
	Messages      []Message   `json:"messages"`
	Answer        string      `json:"answer"`
}

// EventSource identifies where the turn originated.
type EventSource struct {
	Backend string `json:"backend"`
	Client  string `json:"client,omitempty"`
}

// StreamMeta captures how the answer stream went.
type StreamMeta struct {
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
	DurationMs   int64     `json:"duration_ms"`
	Done         bool      `json:"done"`
	FinishReason string    `json:"finish_reason,omitempty"`
	Model        string    `json:"model,omitempty"`
	Warnings     int       `json:"warnings"`
}

// Message is one chain entry as sent to the backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewTurnCompletedEvent fills in the envelope fields of a turn event.
func NewTurnCompletedEvent(source EventSource, chain string, stream StreamMeta, messages []Message, answer string) *TurnCompletedEvent {
	if stream.DurationMs == 0 && !stream.CompletedAt.IsZero() {
		stream.DurationMs = stream.CompletedAt.Sub(stream.StartedAt).Milliseconds()
	}

	return &TurnCompletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeTurnCompleted,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		Chain:         chain,
		Stream:        stream,
		Messages:      messages,
		Answer:        answer,
	}
}
