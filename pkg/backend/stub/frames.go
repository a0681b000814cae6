package stub

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// frameRunes is the number of characters carried by each delta frame.
const frameRunes = 4

type deltaRecord struct {
	Object  string        `json:"object"`
	Model   string        `json:"model"`
	Choices []deltaChoice `json:"choices"`
}

type deltaChoice struct {
	Index        int        `json:"index"`
	Delta        deltaField `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type deltaField struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// Frames renders answer as an OpenAI-compatible chat.completion.chunk
// stream: a keep-alive comment, one "data: " frame per few characters, a
// final frame with finish_reason, and the "[DONE]" sentinel.
func Frames(answer string) []byte {
	var buf bytes.Buffer
	buf.WriteString(": stub stream\n\n")

	writeFrame := func(rec deltaRecord) {
		line, _ := json.Marshal(rec)
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteString("\n\n")
	}

	record := func(delta deltaField, finish *string) deltaRecord {
		return deltaRecord{
			Object:  "chat.completion.chunk",
			Model:   "stub",
			Choices: []deltaChoice{{Delta: delta, FinishReason: finish}},
		}
	}

	writeFrame(record(deltaField{Role: "assistant"}, nil))
	for _, piece := range splitRunes(answer, frameRunes) {
		writeFrame(record(deltaField{Content: piece}, nil))
	}
	stop := "stop"
	writeFrame(record(deltaField{}, &stop))

	buf.WriteString("data: [DONE]\n\n")
	return buf.Bytes()
}

func splitRunes(s string, n int) []string {
	var out []string
	var sb strings.Builder
	count := 0
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		sb.WriteRune(r)
		s = s[size:]
		count++
		if count == n {
			out = append(out, sb.String())
			sb.Reset()
			count = 0
		}
	}
	if sb.Len() > 0 {
		out = append(out, sb.String())
	}
	return out
}
