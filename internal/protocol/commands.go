package protocol

import (
	"encoding/json"
	"fmt"
)

// Command is one outgoing request to the subordinate agent process.
type Command struct {
	Type    string `json:"type"`
	ID      int64  `json:"id"`
	Message string `json:"message,omitempty"`
}

// GetState builds the handshake command sent immediately after spawn.
func GetState(id int64) Command {
	return Command{Type: "get_state", ID: id}
}

// Prompt builds the command delivering the user's message.
func Prompt(id int64, message string) Command {
	return Command{Type: "prompt", ID: id, Message: message}
}

// Encode renders the command as one newline-terminated JSON line.
func (c Command) Encode() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode %s command: %w", c.Type, err)
	}
	return append(data, '\n'), nil
}
