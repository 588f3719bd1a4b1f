package session

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"delegate/internal/services"
)

// Status tracks whether a session accepts new turns by default.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// Info is the persisted metadata record for one session.
type Info struct {
	ID             string     `json:"id"`
	Model          string     `json:"model"`
	Provider       string     `json:"provider"`
	ModelID        string     `json:"model_id"`
	Thinking       string     `json:"thinking,omitempty"`
	Tools          string     `json:"tools,omitempty"`
	TranscriptPath string     `json:"transcript_path"`
	CreatedAt      time.Time  `json:"created_at"`
	Status         Status     `json:"status"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateID rejects identifiers outside [A-Za-z0-9_-]{1,64}. It is a hard
// precondition on every operation that accepts a caller-supplied id and runs
// before any filesystem access.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return services.Wrap(services.ErrValidation, "session", "validate id",
			fmt.Sprintf("id %q must match [A-Za-z0-9_-] and be at most 64 characters", id), nil)
	}
	return nil
}

// NewID generates a unique session identifier.
func NewID() string {
	return uuid.NewString()
}

// SplitModel splits a provider:model string on the first colon. The model id
// may itself contain colons.
func SplitModel(model string) (provider, modelID string, err error) {
	provider, modelID, found := strings.Cut(model, ":")
	if !found || strings.TrimSpace(provider) == "" || strings.TrimSpace(modelID) == "" {
		return "", "", services.Wrap(services.ErrValidation, "session", "validate model",
			fmt.Sprintf("model %q must be provider:model", model), nil)
	}
	return provider, modelID, nil
}

// ValidThinkingLevels enumerates the accepted thinking effort values.
var ValidThinkingLevels = []string{"off", "minimal", "low", "medium", "high"}

// ValidateThinking rejects unknown thinking levels. The empty string is
// allowed and means "not set".
func ValidateThinking(level string) error {
	if level == "" {
		return nil
	}
	for _, known := range ValidThinkingLevels {
		if level == known {
			return nil
		}
	}
	return services.Wrap(services.ErrValidation, "session", "validate thinking",
		fmt.Sprintf("thinking %q must be one of %s", level, strings.Join(ValidThinkingLevels, "|")), nil)
}
