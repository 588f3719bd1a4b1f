package transport_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"delegate/internal/progress"
	"delegate/internal/protocol"
	"delegate/internal/services"
	"delegate/internal/session"
	"delegate/internal/transport"
)

// fakeAgent satisfies transport.Process with scripted responses: every
// command the runner writes to stdin is handed to the script, which emits
// protocol lines on stdout.
type fakeAgent struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter

	stderrText string
	script     func(a *fakeAgent, cmd protocol.Command)

	done     chan struct{}
	exitErr  error
	exitOnce sync.Once

	mu       sync.Mutex
	commands []protocol.Command
	signals  []string
}

func newFakeAgent(script func(a *fakeAgent, cmd protocol.Command)) *fakeAgent {
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	a := &fakeAgent{
		stdinR:  stdinR,
		stdinW:  stdinW,
		stdoutR: stdoutR,
		stdoutW: stdoutW,
		script:  script,
		done:    make(chan struct{}),
	}
	go a.readCommands()
	return a
}

func (a *fakeAgent) readCommands() {
	scanner := bufio.NewScanner(a.stdinR)
	for scanner.Scan() {
		var cmd protocol.Command
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			continue
		}
		a.mu.Lock()
		a.commands = append(a.commands, cmd)
		a.mu.Unlock()
		if a.script != nil {
			a.script(a, cmd)
		}
	}
}

func (a *fakeAgent) emit(line string) {
	_, _ = io.WriteString(a.stdoutW, line+"\n")
}

func (a *fakeAgent) respondOK(id int64) {
	a.emit(fmt.Sprintf(`{"type":"response","id":%d,"success":true}`, id))
}

func (a *fakeAgent) exit(err error) {
	a.exitOnce.Do(func() {
		a.exitErr = err
		_ = a.stdoutW.Close()
		close(a.done)
	})
}

func (a *fakeAgent) recordSignal(name string) {
	a.mu.Lock()
	a.signals = append(a.signals, name)
	a.mu.Unlock()
}

func (a *fakeAgent) sentCommands() []protocol.Command {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]protocol.Command(nil), a.commands...)
}

func (a *fakeAgent) Stdin() io.WriteCloser { return a.stdinW }
func (a *fakeAgent) Stdout() io.Reader     { return a.stdoutR }
func (a *fakeAgent) Stderr() io.Reader     { return strings.NewReader(a.stderrText) }
func (a *fakeAgent) Done() <-chan struct{} { return a.done }
func (a *fakeAgent) ExitErr() error        { return a.exitErr }

func (a *fakeAgent) Terminate() error {
	a.recordSignal("terminate")
	a.exit(nil)
	return nil
}

func (a *fakeAgent) Kill() error {
	a.recordSignal("kill")
	a.exit(nil)
	return nil
}

func launcherFor(a *fakeAgent) transport.Launcher {
	return func(context.Context, transport.LaunchSpec) (transport.Process, error) {
		return a, nil
	}
}

func testSession(t *testing.T) *session.Info {
	t.Helper()
	return &session.Info{
		ID:             "turn-test",
		Model:          "anthropic:claude-sonnet",
		Provider:       "anthropic",
		ModelID:        "claude-sonnet",
		Tools:          "read,grep",
		TranscriptPath: filepath.Join(t.TempDir(), "turn-test.jsonl"),
	}
}

func testOptions(t *testing.T, a *fakeAgent) transport.Options {
	t.Helper()
	return transport.Options{
		Binary:      "fake-agent",
		Session:     testSession(t),
		Message:     "hello",
		Timeout:     2 * time.Second,
		StepTimeout: 2 * time.Second,
		TermGrace:   100 * time.Millisecond,
		Launcher:    launcherFor(a),
	}
}

func scriptedHappyPath(body func(a *fakeAgent)) func(*fakeAgent, protocol.Command) {
	return func(a *fakeAgent, cmd protocol.Command) {
		switch cmd.Type {
		case "get_state":
			a.respondOK(cmd.ID)
		case "prompt":
			a.respondOK(cmd.ID)
			body(a)
		}
	}
}

func TestRunTurnStreamsResponse(t *testing.T) {
	agent := newFakeAgent(scriptedHappyPath(func(a *fakeAgent) {
		a.emit(`{"type":"message_update","update":{"type":"thinking_delta","text":"pondering"}}`)
		a.emit(`{"type":"message_update","update":{"type":"text_delta","text":"Hel"}}`)
		a.emit(`{"type":"message_update","update":{"type":"text_delta","text":"lo"}}`)
		a.emit(`{"type":"message_end","message":{"role":"assistant"}}`)
		a.emit(`{"type":"agent_end","messages":[{"role":"assistant","content":"ignored when streamed","usage":{"input":10,"output":5,"cost":{"total":0.01}}}]}`)
	}))

	result, err := transport.RunTurn(context.Background(), testOptions(t, agent))
	if err != nil {
		t.Fatalf("RunTurn returned error: %v", err)
	}
	if result.Response != "Hello" {
		t.Fatalf("expected streamed text to win, got %q", result.Response)
	}
	if result.Usage == nil || result.Usage.Input != 10 || result.Usage.Output != 5 {
		t.Fatalf("unexpected usage: %+v", result.Usage)
	}

	commands := agent.sentCommands()
	if len(commands) != 2 {
		t.Fatalf("expected handshake and prompt commands, got %+v", commands)
	}
	if commands[0].Type != "get_state" || commands[0].ID != 1 {
		t.Fatalf("unexpected handshake command: %+v", commands[0])
	}
	if commands[1].Type != "prompt" || commands[1].ID != 2 || commands[1].Message != "hello" {
		t.Fatalf("unexpected prompt command: %+v", commands[1])
	}
}

func TestRunTurnFallsBackToFinalMessage(t *testing.T) {
	agent := newFakeAgent(scriptedHappyPath(func(a *fakeAgent) {
		a.emit(`{"type":"agent_end","messages":[{"role":"assistant","content":[{"type":"text","text":"Answer: 42"}]}]}`)
	}))

	result, err := transport.RunTurn(context.Background(), testOptions(t, agent))
	if err != nil {
		t.Fatalf("RunTurn returned error: %v", err)
	}
	if result.Response != "Answer: 42" {
		t.Fatalf("expected fallback text, got %q", result.Response)
	}
}

func TestRunTurnSumsUsageAcrossAssistantMessages(t *testing.T) {
	agent := newFakeAgent(scriptedHappyPath(func(a *fakeAgent) {
		a.emit(`{"type":"agent_end","messages":[` +
			`{"role":"assistant","content":"first","usage":{"input":10,"output":5,"cost":{"total":0.01}}},` +
			`{"role":"user","content":"tool result"},` +
			`{"role":"assistant","content":"second","usage":{"input":20,"output":8,"cost":{"total":0.02}}}]}`)
	}))

	result, err := transport.RunTurn(context.Background(), testOptions(t, agent))
	if err != nil {
		t.Fatalf("RunTurn returned error: %v", err)
	}
	usage := result.Usage
	if usage == nil || usage.Input != 30 || usage.Output != 13 {
		t.Fatalf("expected usage summed across assistant messages, got %+v", usage)
	}
	if math.Abs(usage.Cost.Total-0.03) > 1e-9 {
		t.Fatalf("expected cost 0.03, got %v", usage.Cost.Total)
	}
	if result.Response != "second" {
		t.Fatalf("expected last assistant text, got %q", result.Response)
	}
}

func TestRunTurnHandshakeTimeoutIncludesStderr(t *testing.T) {
	agent := newFakeAgent(nil) // never responds
	agent.stderrText = "agent boot diagnostics\n"

	opts := testOptions(t, agent)
	opts.StepTimeout = 50 * time.Millisecond

	_, err := transport.RunTurn(context.Background(), opts)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if !strings.Contains(err.Error(), "agent boot diagnostics") {
		t.Fatalf("expected captured stderr in message, got %v", err)
	}
}

func TestRunTurnInactivityTimeout(t *testing.T) {
	agent := newFakeAgent(scriptedHappyPath(func(a *fakeAgent) {
		// Acknowledge the prompt and then stall.
	}))

	opts := testOptions(t, agent)
	opts.Timeout = 100 * time.Millisecond

	start := time.Now()
	_, err := transport.RunTurn(context.Background(), opts)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected inactivity timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 1500*time.Millisecond {
		t.Fatalf("timeout fired too late: %s", elapsed)
	}
}

func TestRunTurnToolActivityRearmsInactivityDeadline(t *testing.T) {
	agent := newFakeAgent(scriptedHappyPath(func(a *fakeAgent) {
		for i := 0; i < 6; i++ {
			time.Sleep(50 * time.Millisecond)
			a.emit(`{"type":"tool_execution_start","tool_name":"bash","args":{"cmd":"ls"}}`)
		}
		a.emit(`{"type":"agent_end","messages":[{"role":"assistant","content":"done"}]}`)
	}))

	opts := testOptions(t, agent)
	opts.Timeout = 200 * time.Millisecond

	result, err := transport.RunTurn(context.Background(), opts)
	if err != nil {
		t.Fatalf("expected steady tool activity to hold the deadline open, got %v", err)
	}
	if result.Response != "done" {
		t.Fatalf("unexpected response: %q", result.Response)
	}
}

func TestRunTurnHookErrorAborts(t *testing.T) {
	agent := newFakeAgent(scriptedHappyPath(func(a *fakeAgent) {
		a.emit(`{"type":"hook_error","error":"pre-prompt hook failed"}`)
	}))

	_, err := transport.RunTurn(context.Background(), testOptions(t, agent))
	if !errors.Is(err, services.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if !strings.Contains(err.Error(), "pre-prompt hook failed") {
		t.Fatalf("expected hook detail, got %v", err)
	}
}

func TestRunTurnStreamingErrorAborts(t *testing.T) {
	agent := newFakeAgent(scriptedHappyPath(func(a *fakeAgent) {
		a.emit(`{"type":"message_update","update":{"type":"error","error":"stream broke"}}`)
	}))

	_, err := transport.RunTurn(context.Background(), testOptions(t, agent))
	if !errors.Is(err, services.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestRunTurnErroredMessageEndAborts(t *testing.T) {
	agent := newFakeAgent(scriptedHappyPath(func(a *fakeAgent) {
		a.emit(`{"type":"message_end","message":{"role":"assistant","error":"overloaded"}}`)
	}))

	_, err := transport.RunTurn(context.Background(), testOptions(t, agent))
	if !errors.Is(err, services.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if !strings.Contains(err.Error(), "overloaded") {
		t.Fatalf("expected message error detail, got %v", err)
	}
}

func TestRunTurnUnrequestedFailingResponseAborts(t *testing.T) {
	agent := newFakeAgent(func(a *fakeAgent, cmd protocol.Command) {
		switch cmd.Type {
		case "get_state":
			a.respondOK(cmd.ID)
		case "prompt":
			a.emit(`{"type":"response","id":99,"error":"no such request"}`)
		}
	})

	_, err := transport.RunTurn(context.Background(), testOptions(t, agent))
	if !errors.Is(err, services.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestRunTurnRejectedPromptAborts(t *testing.T) {
	agent := newFakeAgent(func(a *fakeAgent, cmd protocol.Command) {
		switch cmd.Type {
		case "get_state":
			a.respondOK(cmd.ID)
		case "prompt":
			a.emit(fmt.Sprintf(`{"type":"response","id":%d,"error":"prompt rejected"}`, cmd.ID))
		}
	})

	_, err := transport.RunTurn(context.Background(), testOptions(t, agent))
	if !errors.Is(err, services.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if !strings.Contains(err.Error(), "prompt rejected") {
		t.Fatalf("expected rejection detail, got %v", err)
	}
}

func TestRunTurnProcessEarlyExit(t *testing.T) {
	agent := newFakeAgent(func(a *fakeAgent, cmd protocol.Command) {
		if cmd.Type == "get_state" {
			a.respondOK(cmd.ID)
		}
		if cmd.Type == "prompt" {
			a.respondOK(cmd.ID)
			a.exit(errors.New("exit status 1"))
		}
	})
	agent.stderrText = "panic: agent crashed\n"

	_, err := transport.RunTurn(context.Background(), testOptions(t, agent))
	if !errors.Is(err, services.ErrProcess) {
		t.Fatalf("expected process error, got %v", err)
	}
	if !strings.Contains(err.Error(), "before agent_end") || !strings.Contains(err.Error(), "agent crashed") {
		t.Fatalf("expected exit detail with stderr, got %v", err)
	}
}

func TestRunTurnIgnoresUnknownActivity(t *testing.T) {
	agent := newFakeAgent(scriptedHappyPath(func(a *fakeAgent) {
		a.emit(`not json at all`)
		a.emit(`{"type":"future_event","payload":1}`)
		a.emit(`{"type":"message_update","update":{"type":"signature_delta"}}`)
		a.emit(`{"type":"agent_end","messages":[{"role":"assistant","content":"ok"}]}`)
	}))

	result, err := transport.RunTurn(context.Background(), testOptions(t, agent))
	if err != nil {
		t.Fatalf("RunTurn returned error: %v", err)
	}
	if result.Response != "ok" {
		t.Fatalf("unexpected response: %q", result.Response)
	}
}

func TestRunTurnCleansUpOnEveryOutcome(t *testing.T) {
	outcomes := map[string]func() (*fakeAgent, transport.Options){
		"success": func() (*fakeAgent, transport.Options) {
			agent := newFakeAgent(scriptedHappyPath(func(a *fakeAgent) {
				a.emit(`{"type":"agent_end","messages":[{"role":"assistant","content":"ok"}]}`)
			}))
			return agent, transport.Options{}
		},
		"timeout": func() (*fakeAgent, transport.Options) {
			agent := newFakeAgent(nil)
			opts := transport.Options{StepTimeout: 50 * time.Millisecond}
			return agent, opts
		},
		"protocol abort": func() (*fakeAgent, transport.Options) {
			agent := newFakeAgent(scriptedHappyPath(func(a *fakeAgent) {
				a.emit(`{"type":"hook_error","error":"fatal"}`)
			}))
			return agent, transport.Options{}
		},
		"process exit": func() (*fakeAgent, transport.Options) {
			agent := newFakeAgent(func(a *fakeAgent, cmd protocol.Command) {
				a.exit(errors.New("exit status 2"))
			})
			return agent, transport.Options{}
		},
	}

	for name, build := range outcomes {
		t.Run(name, func(t *testing.T) {
			agent, overrides := build()
			progressPath := filepath.Join(t.TempDir(), "progress.json")

			opts := testOptions(t, agent)
			opts.Reporter = progress.NewReporter(progressPath, opts.Session.Model)
			if overrides.StepTimeout != 0 {
				opts.StepTimeout = overrides.StepTimeout
			}

			_, _ = transport.RunTurn(context.Background(), opts)

			if _, err := os.Stat(progressPath); !errors.Is(err, os.ErrNotExist) {
				t.Fatalf("progress file should be removed, stat err=%v", err)
			}
			select {
			case <-agent.Done():
			default:
				t.Fatal("subordinate process should not outlive the turn")
			}
		})
	}
}

func TestLaunchSpecArgs(t *testing.T) {
	spec := transport.LaunchSpec{
		Binary:         "pi",
		Provider:       "anthropic",
		ModelID:        "claude-sonnet",
		Thinking:       "medium",
		Tools:          "read,grep",
		TranscriptPath: "/tmp/s.jsonl",
	}
	got := strings.Join(spec.Args(), " ")
	want := "--mode rpc --no-extensions --provider anthropic --model claude-sonnet --session-file /tmp/s.jsonl --thinking medium --tools read,grep"
	if got != want {
		t.Fatalf("Args() = %q, want %q", got, want)
	}

	spec.Thinking = ""
	spec.Tools = ""
	got = strings.Join(spec.Args(), " ")
	if strings.Contains(got, "--thinking") || strings.Contains(got, "--tools") {
		t.Fatalf("optional flags should be omitted when unset: %q", got)
	}
}
