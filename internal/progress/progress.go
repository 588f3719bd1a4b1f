// Package progress writes the ephemeral status record external observers
// (such as a status-bar extension) poll during an active turn. The record
// lives at a single well-known path shared by all turns; concurrent turns
// overwrite each other's status, which is acceptable because the record is
// advisory only. A terminal done or error record is written when the turn
// ends, immediately before the file is removed unconditionally.
package progress

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"time"
	"unicode/utf8"
)

// State enumerates the externally visible turn activity states.
type State string

const (
	StateThinking  State = "thinking"
	StateTool      State = "tool"
	StateStreaming State = "streaming"
	StateDone      State = "done"
	StateError     State = "error"
)

// maxToolArgsPreview caps the tool argument preview length.
const maxToolArgsPreview = 100

// Record is the JSON document written to the progress file.
type Record struct {
	Model     string    `json:"model"`
	StartTime time.Time `json:"start_time"`
	Status    State     `json:"status"`
	ToolName  string    `json:"tool_name,omitempty"`
	ToolArgs  string    `json:"tool_args,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms"`
}

// Reporter maintains the progress record for one turn. A nil Reporter is a
// valid no-op, and write failures are swallowed: progress must never fail a
// turn.
type Reporter struct {
	path    string
	model   string
	started time.Time
}

// NewReporter prepares a reporter writing to path for the given model. The
// start time is captured now.
func NewReporter(path, model string) *Reporter {
	return &Reporter{path: path, model: model, started: time.Now().UTC()}
}

// Update overwrites the record with the given state.
func (r *Reporter) Update(state State) {
	r.write(Record{Status: state})
}

// UpdateTool overwrites the record with tool activity. The argument preview
// is truncated to 100 characters.
func (r *Reporter) UpdateTool(name string, args string) {
	r.write(Record{Status: StateTool, ToolName: name, ToolArgs: Truncate(args, maxToolArgsPreview)})
}

// Clear removes the record. Safe to call repeatedly and when no record exists.
func (r *Reporter) Clear() {
	if r == nil || r.path == "" {
		return
	}
	if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_ = err
	}
}

func (r *Reporter) write(record Record) {
	if r == nil || r.path == "" {
		return
	}
	record.Model = r.model
	record.StartTime = r.started
	record.ElapsedMS = time.Since(r.started).Milliseconds()
	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	_ = os.WriteFile(r.path, append(data, '\n'), 0o644)
}

// Truncate shortens s to at most max runes, appending an ellipsis marker when
// anything was cut.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
