package protocol

import (
	"encoding/json"
	"strings"
)

// Message is one entry of the terminal message list carried by agent_end.
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Usage   *Usage          `json:"usage,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Usage carries token and cost accounting for one assistant message.
type Usage struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Cost   Cost  `json:"cost"`
}

// Cost carries the monetary accounting for one assistant message.
type Cost struct {
	Total float64 `json:"total"`
}

// Add accumulates another message's usage into u.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.Input += other.Input
	u.Output += other.Output
	u.Cost.Total += other.Cost.Total
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Text extracts the message's textual content. A plain string is returned
// as-is; a sequence of typed parts yields the text parts joined with a blank
// line; any other shape yields an empty string.
func (m Message) Text() string {
	if len(m.Content) == 0 {
		return ""
	}
	var plain string
	if err := json.Unmarshal(m.Content, &plain); err == nil {
		return plain
	}
	var parts []contentPart
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return ""
	}
	texts := make([]string, 0, len(parts))
	for _, part := range parts {
		if part.Type == "text" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n\n")
}

// IsAssistant reports whether the message was authored by the assistant.
func (m Message) IsAssistant() bool {
	return m.Role == "assistant"
}
