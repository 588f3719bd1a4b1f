package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for values the engine cannot operate with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Agent.Binary) == "" {
		return fmt.Errorf("agent.binary must not be empty")
	}
	if c.Agent.TimeoutMS < 0 {
		return fmt.Errorf("agent.timeout_ms must not be negative")
	}
	if c.Agent.StepTimeoutMS < 0 {
		return fmt.Errorf("agent.step_timeout_ms must not be negative")
	}
	if c.Agent.TermGraceMS < 0 {
		return fmt.Errorf("agent.term_grace_ms must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
