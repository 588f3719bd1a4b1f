package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// EnvAgentBin selects the subordinate agent executable, overriding both the
// config file and the built-in default.
const EnvAgentBin = "DELEGATE_AGENT_BIN"

// Paths contains directory and file location configuration.
type Paths struct {
	SessionsDir  string `toml:"sessions_dir"`
	ProgressFile string `toml:"progress_file"`
}

// Agent contains subordinate process invocation settings.
type Agent struct {
	Binary        string `toml:"binary"`
	DefaultTools  string `toml:"default_tools"`
	TimeoutMS     int    `toml:"timeout_ms"`
	StepTimeoutMS int    `toml:"step_timeout_ms"`
	TermGraceMS   int    `toml:"term_grace_ms"`
}

// UsageLedger contains settings for the per-turn usage database.
type UsageLedger struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for delegate.
type Config struct {
	Paths   Paths       `toml:"paths"`
	Agent   Agent       `toml:"agent"`
	Usage   UsageLedger `toml:"usage"`
	Logging Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return ExpandPath("~/.config/delegate/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a file was found at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", false, err
		}
		path = defaultPath
	} else {
		expanded, err := ExpandPath(path)
		if err != nil {
			return "", false, err
		}
		path = expanded
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return path, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	return path, true, nil
}

func (c *Config) normalize() error {
	c.Paths.SessionsDir = strings.TrimSpace(c.Paths.SessionsDir)
	c.Paths.ProgressFile = strings.TrimSpace(c.Paths.ProgressFile)
	c.Agent.Binary = strings.TrimSpace(c.Agent.Binary)
	c.Agent.DefaultTools = strings.TrimSpace(c.Agent.DefaultTools)
	c.Usage.Path = strings.TrimSpace(c.Usage.Path)

	if c.Paths.SessionsDir == "" {
		c.Paths.SessionsDir = defaultSessionsDir()
	}
	if c.Paths.ProgressFile == "" {
		c.Paths.ProgressFile = defaultProgressFile()
	}
	if c.Agent.Binary == "" {
		c.Agent.Binary = defaultAgentBinary
	}
	if override := strings.TrimSpace(os.Getenv(EnvAgentBin)); override != "" {
		c.Agent.Binary = override
	}
	if c.Agent.DefaultTools == "" {
		c.Agent.DefaultTools = defaultTools
	}
	if c.Agent.TimeoutMS == 0 {
		c.Agent.TimeoutMS = defaultTimeoutMS
	}
	if c.Agent.StepTimeoutMS == 0 {
		c.Agent.StepTimeoutMS = defaultStepTimeoutMS
	}
	if c.Agent.TermGraceMS == 0 {
		c.Agent.TermGraceMS = defaultTermGraceMS
	}
	if c.Usage.Path == "" {
		c.Usage.Path = filepath.Join(defaultSessionsDir(), "usage.db")
	}
	if strings.TrimSpace(c.Logging.Format) == "" {
		c.Logging.Format = defaultLogFormat
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaultLogLevel
	}

	for _, field := range []*string{&c.Paths.SessionsDir, &c.Paths.ProgressFile, &c.Usage.Path} {
		expanded, err := ExpandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	return nil
}

// EnsureDirectories creates the directories the engine writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.SessionsDir,
		filepath.Dir(c.Paths.ProgressFile),
	}
	if c.Usage.Enabled {
		dirs = append(dirs, filepath.Dir(c.Usage.Path))
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Timeout returns the configured sliding inactivity timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Agent.TimeoutMS) * time.Millisecond
}

// StepTimeout returns the configured per-step deadline.
func (c *Config) StepTimeout() time.Duration {
	return time.Duration(c.Agent.StepTimeoutMS) * time.Millisecond
}

// TermGrace returns how long teardown waits between SIGTERM and SIGKILL.
func (c *Config) TermGrace() time.Duration {
	return time.Duration(c.Agent.TermGraceMS) * time.Millisecond
}

// ExpandPath resolves a leading tilde and returns an absolute path.
func ExpandPath(pathValue string) (string, error) {
	pathValue = strings.TrimSpace(pathValue)
	if pathValue == "" {
		return "", errors.New("path is empty")
	}
	if pathValue == "~" || strings.HasPrefix(pathValue, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		pathValue = filepath.Join(home, strings.TrimPrefix(pathValue, "~"))
	}
	abs, err := filepath.Abs(pathValue)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", pathValue, err)
	}
	return abs, nil
}
