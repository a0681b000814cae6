package sse

import (
	"encoding/json"
	"strings"
)

const (
	// DataPrefix is the marker that starts every line of interest.
	DataPrefix = "data: "

	// DoneSentinel is the payload that ends the stream.
	DoneSentinel = "[DONE]"
)

// ParseLine interprets one complete line of the stream. It never fails:
// undecodable payloads come back as KindMalformed with Err set.
func ParseLine(line string) Event {
	if !strings.HasPrefix(line, DataPrefix) {
		return Event{Kind: KindSkip}
	}

	data := strings.TrimSpace(line[len(DataPrefix):])
	if data == DoneSentinel {
		return Event{Kind: KindTerminal, Data: data}
	}

	var record any
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return Event{
			Kind: KindMalformed,
			Data: data,
			Err:  &DecodeError{Data: data, Err: ErrMalformedPayload},
		}
	}

	ev := Event{Kind: KindSkip, Data: data}
	obj, ok := record.(map[string]any)
	if !ok {
		return ev
	}

	if model, ok := obj["model"].(string); ok {
		ev.Model = model
	}
	ev.Usage = parseUsage(obj["usage"])

	// choices[0].delta.content
	choices, ok := obj["choices"].([]any)
	if !ok || len(choices) == 0 {
		return ev
	}
	choice, ok := choices[0].(map[string]any)
	if !ok {
		return ev
	}
	if fr, ok := choice["finish_reason"].(string); ok {
		ev.FinishReason = fr
	}
	delta, ok := choice["delta"].(map[string]any)
	if !ok {
		return ev
	}
	if content, ok := delta["content"].(string); ok {
		ev.Kind = KindPayload
		ev.Fragment = content
	}

	return ev
}

func parseUsage(v any) *Usage {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}

	count := func(key string) int {
		n, _ := m[key].(float64)
		return int(n)
	}

	return &Usage{
		PromptTokens:     count("prompt_tokens"),
		CompletionTokens: count("completion_tokens"),
		TotalTokens:      count("total_tokens"),
	}
}
