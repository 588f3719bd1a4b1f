package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// LaunchSpec describes one subordinate agent invocation.
type LaunchSpec struct {
	Binary         string
	Provider       string
	ModelID        string
	Thinking       string
	Tools          string
	TranscriptPath string
}

// Args builds the command line selecting RPC mode, disabling auxiliary UI
// extensions, and passing the session's model and transcript so the agent can
// resume prior history.
func (s LaunchSpec) Args() []string {
	args := []string{
		"--mode", "rpc",
		"--no-extensions",
		"--provider", s.Provider,
		"--model", s.ModelID,
		"--session-file", s.TranscriptPath,
	}
	if s.Thinking != "" {
		args = append(args, "--thinking", s.Thinking)
	}
	if s.Tools != "" {
		args = append(args, "--tools", s.Tools)
	}
	return args
}

// Process is a running subordinate agent with its three streams.
type Process interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader

	// Terminate sends SIGTERM to the process group.
	Terminate() error
	// Kill sends SIGKILL to the process group.
	Kill() error
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// ExitErr reports how the process exited. Valid only after Done is closed.
	ExitErr() error
}

// Launcher spawns a subordinate process for one turn. Injectable for tests.
type Launcher func(ctx context.Context, spec LaunchSpec) (Process, error)

// Launch starts the agent binary with its own process group so teardown can
// signal the whole tree. Cancelling ctx terminates the group.
func Launch(ctx context.Context, spec LaunchSpec) (Process, error) {
	binary := strings.TrimSpace(spec.Binary)
	if binary == "" {
		return nil, errors.New("agent binary required")
	}

	cmd := exec.CommandContext(ctx, binary, spec.Args()...) //nolint:gosec
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	proc := &osProcess{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		done:   make(chan struct{}),
	}
	// Context cancellation goes through the group terminate rather than the
	// default single-process SIGKILL, so children get the same shutdown path.
	cmd.Cancel = proc.Terminate

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", binary, err)
	}

	go func() {
		proc.exitErr = cmd.Wait()
		close(proc.done)
	}()
	return proc, nil
}

type osProcess struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.Reader
	stderr  io.Reader
	done    chan struct{}
	exitErr error
}

func (p *osProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *osProcess) Stdout() io.Reader     { return p.stdout }
func (p *osProcess) Stderr() io.Reader     { return p.stderr }
func (p *osProcess) Done() <-chan struct{} { return p.done }
func (p *osProcess) ExitErr() error        { return p.exitErr }

func (p *osProcess) Terminate() error { return p.signalGroup(unix.SIGTERM) }
func (p *osProcess) Kill() error      { return p.signalGroup(unix.SIGKILL) }

func (p *osProcess) signalGroup(sig unix.Signal) error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if p.cmd.Process == nil {
		return nil
	}
	pid := p.cmd.Process.Pid
	if err := unix.Kill(-pid, sig); err != nil {
		// Fall back to the single process when the group is already gone.
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return p.cmd.Process.Signal(sig)
	}
	return nil
}

// DescribeExit renders a process exit error as "exit code N" or
// "signal: <name>" for failure messages.
func DescribeExit(err error) string {
	if err == nil {
		return "exit code 0"
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return fmt.Sprintf("signal: %s", status.Signal())
		}
		return fmt.Sprintf("exit code %d", exitErr.ExitCode())
	}
	return err.Error()
}
