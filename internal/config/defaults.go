package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	defaultAgentBinary   = "pi"
	defaultTools         = "read,grep,find,ls"
	defaultTimeoutMS     = 300000
	defaultStepTimeoutMS = 30000
	defaultTermGraceMS   = 2000
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SessionsDir:  defaultSessionsDir(),
			ProgressFile: defaultProgressFile(),
		},
		Agent: Agent{
			Binary:        defaultAgentBinary,
			DefaultTools:  defaultTools,
			TimeoutMS:     defaultTimeoutMS,
			StepTimeoutMS: defaultStepTimeoutMS,
			TermGraceMS:   defaultTermGraceMS,
		},
		Usage: UsageLedger{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

// defaultStateDir is the per-user scratch directory holding session metadata,
// transcripts, the progress file, and the usage ledger.
func defaultStateDir() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("delegate-%d", os.Getuid()))
}

func defaultSessionsDir() string {
	return filepath.Join(defaultStateDir(), "sessions")
}

func defaultProgressFile() string {
	return filepath.Join(defaultStateDir(), "progress.json")
}
