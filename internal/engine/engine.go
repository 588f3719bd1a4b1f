package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"delegate/internal/config"
	"delegate/internal/logging"
	"delegate/internal/progress"
	"delegate/internal/services"
	"delegate/internal/session"
	"delegate/internal/transport"
	"delegate/internal/usagelog"
)

// Engine orchestrates sessions and turns. It holds no per-session state in
// memory; the persisted record is the sole source of truth between turns.
type Engine struct {
	cfg      *config.Config
	store    *session.Store
	usage    *usagelog.Store
	logger   *slog.Logger
	launcher transport.Launcher
}

// Option customizes engine construction.
type Option func(*Engine)

// WithLauncher overrides how subordinate processes are spawned. Tests inject
// scripted agents through this.
func WithLauncher(launcher transport.Launcher) Option {
	return func(e *Engine) {
		e.launcher = launcher
	}
}

// WithUsageStore injects a pre-opened usage ledger.
func WithUsageStore(store *usagelog.Store) Option {
	return func(e *Engine) {
		e.usage = store
	}
}

// New builds an engine over the configured sessions directory border. The
// usage ledger is opened when enabled; ledger failures degrade to a warning
// because accounting must never block conversations.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	store, err := session.NewStore(cfg.Paths.SessionsDir)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.usage == nil && cfg.Usage.Enabled {
		usage, err := usagelog.Open(cfg.Usage.Path)
		if err != nil {
			e.logger.Warn("usage ledger unavailable", logging.Error(err))
		} else {
			e.usage = usage
		}
	}
	return e, nil
}

// Close releases the usage ledger.
func (e *Engine) Close() error {
	return e.usage.Close()
}

// StartRequest carries the parameters for a new session.
type StartRequest struct {
	Model    string
	Thinking string
	Tools    string
	Name     string
}

// Start validates the request, persists a new active session record, and
// returns it. No subordinate process is touched.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*session.Info, error) {
	provider, modelID, err := session.SplitModel(req.Model)
	if err != nil {
		return nil, err
	}
	if err := session.ValidateThinking(req.Thinking); err != nil {
		return nil, err
	}

	id := strings.TrimSpace(req.Name)
	if id == "" {
		id = session.NewID()
	} else if err := session.ValidateID(id); err != nil {
		return nil, err
	}

	tools := strings.TrimSpace(req.Tools)
	if tools == "" {
		tools = e.cfg.Agent.DefaultTools
	}

	info := &session.Info{
		ID:             id,
		Model:          req.Model,
		Provider:       provider,
		ModelID:        modelID,
		Thinking:       req.Thinking,
		Tools:          tools,
		TranscriptPath: e.store.TranscriptPath(id),
		CreatedAt:      time.Now().UTC(),
		Status:         session.StatusActive,
	}
	if err := e.store.Create(info); err != nil {
		return nil, err
	}
	e.logger.Info("session started",
		logging.String(logging.FieldSessionID, id),
		logging.String("model", req.Model),
	)
	return info, nil
}

// Send runs exactly one turn against the named session. Closed sessions are
// resumable: status is not checked here. Turn failure leaves the session
// record untouched.
func (e *Engine) Send(ctx context.Context, id, message string, timeout time.Duration) (*transport.Result, error) {
	info, err := e.store.Load(id)
	if err != nil {
		return nil, err
	}
	release, err := e.store.LockTurn(id)
	if err != nil {
		return nil, err
	}
	defer release()

	if timeout <= 0 {
		timeout = e.cfg.Timeout()
	}

	turnCtx := services.WithSessionID(ctx, id)
	started := time.Now()
	result, err := transport.RunTurn(turnCtx, transport.Options{
		Binary:      e.cfg.Agent.Binary,
		Session:     info,
		Message:     message,
		Timeout:     timeout,
		StepTimeout: e.cfg.StepTimeout(),
		TermGrace:   e.cfg.TermGrace(),
		Launcher:    e.launcher,
		Reporter:    progress.NewReporter(e.cfg.Paths.ProgressFile, info.Model),
		Logger:      e.logger,
	})
	if err != nil {
		return nil, err
	}

	e.recordUsage(turnCtx, info, result, time.Since(started))
	return result, nil
}

func (e *Engine) recordUsage(ctx context.Context, info *session.Info, result *transport.Result, duration time.Duration) {
	if e.usage == nil || result.Usage == nil {
		return
	}
	entry := usagelog.Entry{
		SessionID:    info.ID,
		Model:        info.Model,
		InputTokens:  result.Usage.Input,
		OutputTokens: result.Usage.Output,
		Cost:         result.Usage.Cost.Total,
		Duration:     duration,
	}
	if err := e.usage.Record(ctx, entry); err != nil {
		e.logger.Warn("failed to record turn usage",
			logging.String(logging.FieldSessionID, info.ID),
			logging.Error(err),
		)
	}
}

// End flips the session to closed. Metadata and transcript stay on disk, so
// the session remains resumable; closing twice rewrites the same fields.
func (e *Engine) End(ctx context.Context, id string) error {
	if err := e.store.Close(id); err != nil {
		return err
	}
	e.logger.Info("session closed", logging.String(logging.FieldSessionID, id))
	return nil
}

// Purge removes the session's metadata and transcript irreversibly. Safe to
// call on an already-deleted session.
func (e *Engine) Purge(ctx context.Context, id string) error {
	if err := e.store.Purge(id); err != nil {
		return err
	}
	e.logger.Info("session purged", logging.String(logging.FieldSessionID, id))
	return nil
}

// Ask composes Start, Send, and End for a one-shot exchange. End runs even
// when the turn fails; the turn failure is what the caller sees.
func (e *Engine) Ask(ctx context.Context, req StartRequest, message string, timeout time.Duration) (*transport.Result, error) {
	info, err := e.Start(ctx, req)
	if err != nil {
		return nil, err
	}

	result, sendErr := e.Send(ctx, info.ID, message, timeout)
	if endErr := e.End(ctx, info.ID); endErr != nil {
		if sendErr == nil {
			sendErr = endErr
		} else {
			e.logger.Warn("failed to close one-shot session",
				logging.String(logging.FieldSessionID, info.ID),
				logging.Error(endErr),
			)
		}
	}
	return result, sendErr
}

// List returns a snapshot of every well-formed session record.
func (e *Engine) List(ctx context.Context) ([]*session.Info, error) {
	return e.store.List()
}

// UsageTotals aggregates the usage ledger, optionally for one session id.
func (e *Engine) UsageTotals(ctx context.Context, sessionID string) ([]usagelog.SessionTotals, error) {
	if sessionID != "" {
		if err := session.ValidateID(sessionID); err != nil {
			return nil, err
		}
	}
	if e.usage == nil {
		return nil, errors.New("usage ledger is disabled")
	}
	return e.usage.Totals(ctx, sessionID)
}
