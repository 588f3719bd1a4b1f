package transport

import (
	"strings"

	"delegate/internal/protocol"
)

// accumulator folds streaming text deltas and the terminal message list into
// the final response text and usage summary.
type accumulator struct {
	text strings.Builder
}

func (a *accumulator) Add(delta string) {
	a.text.WriteString(delta)
}

// Finalize computes the turn result from the terminal message list. Usage is
// summed across every assistant-authored message, not only the last one;
// last-message-only accounting undercounts multi-message turns. When no text
// was streamed, the last assistant message's content is used instead.
func (a *accumulator) Finalize(messages []protocol.Message) (string, *protocol.Usage) {
	var usage *protocol.Usage
	var lastAssistant *protocol.Message
	for i := range messages {
		if !messages[i].IsAssistant() {
			continue
		}
		lastAssistant = &messages[i]
		if messages[i].Usage != nil {
			if usage == nil {
				usage = &protocol.Usage{}
			}
			usage.Add(messages[i].Usage)
		}
	}

	text := a.text.String()
	if strings.TrimSpace(text) == "" && lastAssistant != nil {
		text = lastAssistant.Text()
	}
	return strings.TrimSpace(text), usage
}
