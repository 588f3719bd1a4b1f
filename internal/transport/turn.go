package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"delegate/internal/logging"
	"delegate/internal/progress"
	"delegate/internal/protocol"
	"delegate/internal/services"
	"delegate/internal/session"
)

// State names the phases of one turn.
type State string

const (
	StateIdle        State = "idle"
	StateHandshaking State = "handshaking"
	StatePrompting   State = "prompting"
	StateStreaming   State = "streaming"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

const (
	stepHandshake = "handshake"
	stepPrompt    = "prompt"

	stderrTailLines = 20
	maxEventLine    = 10 * 1024 * 1024
)

// Options configures one turn against a subordinate agent process.
type Options struct {
	Binary  string
	Session *session.Info
	Message string

	// Timeout is the sliding inactivity deadline, armed once the prompt is
	// acknowledged and rearmed by every delta and tool event.
	Timeout time.Duration
	// StepTimeout races the handshake and prompt-acknowledgment steps.
	StepTimeout time.Duration
	// TermGrace is how long teardown waits between SIGTERM and SIGKILL.
	TermGrace time.Duration

	Launcher Launcher
	Reporter *progress.Reporter
	Logger   *slog.Logger
}

// Result is the accumulated outcome of a successful turn.
type Result struct {
	Response string
	Usage    *protocol.Usage
}

// RunTurn drives one complete turn: spawn, handshake, prompt, stream,
// teardown. The subordinate process never outlives the call.
func RunTurn(ctx context.Context, opts Options) (*Result, error) {
	if opts.Session == nil {
		return nil, errors.New("session required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 300 * time.Second
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 30 * time.Second
	}
	if opts.TermGrace <= 0 {
		opts.TermGrace = 2 * time.Second
	}
	launcher := opts.Launcher
	if launcher == nil {
		launcher = Launch
	}
	logger := logging.NewComponentLogger(opts.Logger, "transport").With(
		logging.String(logging.FieldSessionID, opts.Session.ID),
	)

	spec := LaunchSpec{
		Binary:         opts.Binary,
		Provider:       opts.Session.Provider,
		ModelID:        opts.Session.ModelID,
		Thinking:       opts.Session.Thinking,
		Tools:          opts.Session.Tools,
		TranscriptPath: opts.Session.TranscriptPath,
	}

	opts.Reporter.Update(progress.StateThinking)

	proc, err := launcher(ctx, spec)
	if err != nil {
		opts.Reporter.Update(progress.StateError)
		opts.Reporter.Clear()
		return nil, services.Wrap(services.ErrProcess, "transport", "spawn agent", "", err)
	}

	logger.Info("turn started",
		logging.String("model", opts.Session.Model),
		logging.Duration("timeout", opts.Timeout),
	)

	r := &turnRunner{
		proc:      proc,
		message:   opts.Message,
		timeout:   opts.Timeout,
		stepWait:  opts.StepTimeout,
		termGrace: opts.TermGrace,
		reporter:  opts.Reporter,
		logger:    logger,
		corr:      newCorrelator(),
		tail:      newStderrTail(stderrTailLines),
		events:    make(chan protocol.Event, 64),
		quit:      make(chan struct{}),
		state:     StateIdle,
	}
	return r.run(ctx)
}

type turnRunner struct {
	proc      Process
	message   string
	timeout   time.Duration
	stepWait  time.Duration
	termGrace time.Duration
	reporter  *progress.Reporter
	logger    *slog.Logger

	corr   *correlator
	acc    accumulator
	tail   *stderrTail
	events chan protocol.Event
	quit   chan struct{}
	state  State

	teardownOnce sync.Once
}

func (r *turnRunner) run(ctx context.Context) (*Result, error) {
	defer r.teardown()

	go r.decode()
	go r.tail.capture(r.proc.Stderr())

	step := time.NewTimer(r.stepWait)
	defer step.Stop()
	idle := newSlidingTimer(r.timeout)
	defer idle.Stop()

	r.state = StateHandshaking
	if err := r.command(protocol.GetState(r.corr.track(stepHandshake))); err != nil {
		r.state = StateFailed
		return nil, err
	}

	for {
		select {
		case ev, ok := <-r.events:
			if !ok {
				r.state = StateFailed
				return nil, r.earlyExitError()
			}
			result, err := r.handle(ev, step, idle)
			if err != nil {
				r.state = StateFailed
				r.logger.Error("turn failed", logging.Error(err))
				return nil, err
			}
			if result != nil {
				r.state = StateDone
				r.logger.Info("turn completed",
					logging.Int("response_chars", len(result.Response)),
				)
				return result, nil
			}

		case <-step.C:
			// A stale expiry can slip in when the acknowledgment and the
			// deadline race; only the handshake and prompting states are
			// bounded by the step deadline.
			if r.state != StateHandshaking && r.state != StatePrompting {
				continue
			}
			failedStep := stepHandshake
			if r.state == StatePrompting {
				failedStep = stepPrompt
			}
			r.state = StateFailed
			return nil, r.timeoutError(failedStep+" response", r.stepWait)

		case <-idle.C():
			r.state = StateFailed
			return nil, r.timeoutError("activity", r.timeout)

		case <-ctx.Done():
			r.state = StateFailed
			return nil, fmt.Errorf("turn canceled: %w", ctx.Err())
		}
	}
}

// handle applies one protocol event to the state machine. A non-nil Result
// means terminal success; a non-nil error means terminal failure; both nil
// means keep going.
func (r *turnRunner) handle(ev protocol.Event, step *time.Timer, idle *slidingTimer) (*Result, error) {
	switch ev := ev.(type) {
	case protocol.ResponseEvent:
		pendingStep, tracked := r.corr.resolve(ev.ID)
		if !tracked {
			if !ev.Success {
				return nil, r.protocolError("unrequested failing response", ev.Error)
			}
			return nil, nil
		}
		if !ev.Success {
			return nil, r.protocolError(pendingStep+" rejected", ev.Error)
		}
		switch pendingStep {
		case stepHandshake:
			r.state = StatePrompting
			r.logger.Debug("handshake complete")
			if err := r.command(protocol.Prompt(r.corr.track(stepPrompt), r.message)); err != nil {
				return nil, err
			}
			resetStepTimer(step, r.stepWait)
		case stepPrompt:
			r.state = StateStreaming
			r.logger.Debug("prompt acknowledged")
			step.Stop()
			idle.Arm()
		}
		return nil, nil

	case protocol.MessageUpdateEvent:
		switch ev.Kind {
		case protocol.UpdateTextDelta:
			r.acc.Add(ev.Text)
			idle.Touch()
			r.reporter.Update(progress.StateStreaming)
		case protocol.UpdateThinkingDelta:
			idle.Touch()
			r.reporter.Update(progress.StateThinking)
		case protocol.UpdateError:
			return nil, r.protocolError("streaming error", ev.Error)
		default:
			idle.Touch()
		}
		return nil, nil

	case protocol.MessageEndEvent:
		if ev.Error != "" {
			return nil, r.protocolError("message failed", ev.Error)
		}
		return nil, nil

	case protocol.ToolStartEvent:
		idle.Touch()
		r.reporter.UpdateTool(ev.ToolName, string(ev.Args))
		r.logger.Debug("tool execution started", logging.String("tool", ev.ToolName))
		return nil, nil

	case protocol.ToolUpdateEvent, protocol.ToolEndEvent:
		idle.Touch()
		return nil, nil

	case protocol.AgentEndEvent:
		text, usage := r.acc.Finalize(ev.Messages)
		return &Result{Response: text, Usage: usage}, nil

	case protocol.HookErrorEvent:
		return nil, r.protocolError("hook error", ev.Error)
	}
	return nil, nil
}

// decode reads stdout lines into the event channel, preserving line order.
// The channel is closed on EOF so the state machine observes a process that
// exited before agent_end.
func (r *turnRunner) decode() {
	defer close(r.events)
	scanner := bufio.NewScanner(r.proc.Stdout())
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	for scanner.Scan() {
		ev, err := protocol.DecodeLine(scanner.Bytes())
		if err != nil {
			continue
		}
		select {
		case r.events <- ev:
		case <-r.quit:
			return
		}
	}
}

func (r *turnRunner) command(cmd protocol.Command) error {
	data, err := cmd.Encode()
	if err != nil {
		return err
	}
	if _, err := r.proc.Stdin().Write(data); err != nil {
		return services.Wrap(services.ErrProcess, "transport", "send "+cmd.Type, r.withStderr("write to agent stdin failed"), err)
	}
	r.logger.Debug("command sent",
		logging.String("command", cmd.Type),
		logging.Int64(logging.FieldCommandID, cmd.ID),
	)
	return nil
}

// teardown releases the process, its streams, and the progress record exactly
// once, on every exit path.
func (r *turnRunner) teardown() {
	r.teardownOnce.Do(func() {
		// Publish the terminal status before removal so a poll landing in the
		// window sees done/error rather than a stale activity state.
		switch r.state {
		case StateDone:
			r.reporter.Update(progress.StateDone)
		case StateFailed:
			r.reporter.Update(progress.StateError)
		}
		r.reporter.Clear()
		close(r.quit)
		if stdin := r.proc.Stdin(); stdin != nil {
			_ = stdin.Close()
		}
		_ = r.proc.Terminate()
		select {
		case <-r.proc.Done():
		case <-time.After(r.termGrace):
			_ = r.proc.Kill()
			select {
			case <-r.proc.Done():
			case <-time.After(r.termGrace):
			}
		}
		r.logger.Debug("turn teardown complete", logging.String(logging.FieldTurnState, string(r.state)))
	})
}

func (r *turnRunner) earlyExitError() error {
	select {
	case <-r.proc.Done():
	case <-time.After(r.termGrace):
	}
	msg := fmt.Sprintf("agent exited before agent_end (%s)", DescribeExit(r.proc.ExitErr()))
	return services.Wrap(services.ErrProcess, "transport", "await events", r.withStderr(msg), nil)
}

func (r *turnRunner) timeoutError(what string, d time.Duration) error {
	msg := fmt.Sprintf("no %s within %s", what, d)
	err := services.Wrap(services.ErrTimeout, "transport", string(r.state), r.withStderr(msg), nil)
	r.logger.Error("turn timed out", logging.Error(err))
	return err
}

func (r *turnRunner) protocolError(operation, detail string) error {
	return services.Wrap(services.ErrProtocol, "transport", operation, detail, nil)
}

func (r *turnRunner) withStderr(msg string) string {
	if tail := r.tail.String(); tail != "" {
		return msg + "; stderr: " + tail
	}
	return msg
}

func resetStepTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
