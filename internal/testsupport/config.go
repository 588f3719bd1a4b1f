package testsupport

import (
	"path/filepath"
	"testing"

	"delegate/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.SessionsDir = filepath.Join(base, "sessions")
	cfgVal.Paths.ProgressFile = filepath.Join(base, "progress.json")
	cfgVal.Usage.Enabled = false
	cfgVal.Usage.Path = filepath.Join(base, "usage.db")
	cfgVal.Agent.Binary = "fake-agent"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithUsageLedger enables the usage ledger on the test config.
func WithUsageLedger() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Usage.Enabled = true
	}
}

// WithAgentBinary overrides the subordinate executable on the test config.
func WithAgentBinary(binary string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Agent.Binary = binary
	}
}
