// Package supervisor drives conversations through registered workflows.
//
// Each call to HandleTurn processes one user message for one session: it
// resumes the workflow waiting on an answer, or classifies the message,
// routes it to a workflow, and starts that workflow. The workflow's state
// is checkpointed after every step; the session record is written last,
// and only once the checkpoint writes succeeded.
//
// Two turns racing on the same session are serialized by the checkpoint
// version: the loser gets a TurnError of kind KindCheckpointConflict and
// the session is left untouched.
//
// An emergency keyword in any message preempts a suspended workflow. The
// preempted checkpoint stays intact and the session parks its name; once
// the emergency workflow finishes, the parked workflow becomes active
// again and the following turn resumes it.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/careflow/pkg/careflow"
	"github.com/randalmurphal/careflow/pkg/careflow/checkpoint"
	cferrors "github.com/randalmurphal/careflow/pkg/careflow/errors"
	"github.com/randalmurphal/careflow/pkg/careflow/llm"
	"github.com/randalmurphal/careflow/pkg/careflow/observability"
	"github.com/randalmurphal/careflow/pkg/careflow/registry"
)

// Keys the supervisor seeds into a freshly started instance.
const (
	SeedMessage  = "message"
	SeedIntent   = "intent"
	SeedRisk     = "risk"
	SeedKeywords = "emergency_keywords"
)

// Workflows is the registry the supervisor routes into.
type Workflows = registry.Registry[string, *careflow.Workflow]

// Supervisor owns sessions and drives workflows for them. It is safe for
// concurrent use across sessions.
type Supervisor struct {
	workflows   *Workflows
	checkpoints checkpoint.Store
	sessions    SessionStore

	settings   Settings
	classifier *Classifier
	router     *Router

	llm     llm.Service
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	now     func() time.Time
	newID   func() string
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithSettings replaces DefaultSettings.
func WithSettings(s Settings) Option {
	return func(sup *Supervisor) { sup.settings = s }
}

// WithLLM sets the text service for the classifier and workflow steps.
func WithLLM(svc llm.Service) Option {
	return func(sup *Supervisor) { sup.llm = svc }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(sup *Supervisor) {
		if logger != nil {
			sup.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(sup *Supervisor) {
		if m != nil {
			sup.metrics = m
		}
	}
}

// WithSpans enables turn and node spans.
func WithSpans(s observability.SpanManager) Option {
	return func(sup *Supervisor) {
		if s != nil {
			sup.spans = s
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(sup *Supervisor) {
		if now != nil {
			sup.now = now
		}
	}
}

// WithIDGenerator overrides how IDs are minted for turns that arrive
// without a session ID. Default: random UUIDs.
func WithIDGenerator(fn func() string) Option {
	return func(sup *Supervisor) {
		if fn != nil {
			sup.newID = fn
		}
	}
}

// New creates a supervisor. Every workflow the router can select must be
// registered in workflows.
func New(workflows *Workflows, checkpoints checkpoint.Store, sessions SessionStore, opts ...Option) (*Supervisor, error) {
	if workflows == nil || checkpoints == nil || sessions == nil {
		return nil, errors.New("supervisor: workflows, checkpoints, and sessions are required")
	}
	s := &Supervisor{
		workflows:   workflows,
		checkpoints: checkpoints,
		sessions:    sessions,
		settings:    DefaultSettings(),
		logger:      slog.Default(),
		metrics:     observability.NoopMetrics{},
		spans:       observability.NoopSpanManager{},
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.settings.Validate(); err != nil {
		return nil, fmt.Errorf("supervisor: %w", err)
	}
	router, err := NewRouter(s.settings)
	if err != nil {
		return nil, fmt.Errorf("supervisor: %w", err)
	}
	var missing []error
	for _, name := range router.Targets() {
		if !workflows.Has(name) {
			missing = append(missing, fmt.Errorf("%w: %s", ErrUnknownWorkflow, name))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("supervisor: %w", errors.Join(missing...))
	}

	s.router = router
	s.classifier = NewClassifier(s.llm, s.settings)
	return s, nil
}

// Router returns the router in use.
func (s *Supervisor) Router() *Router { return s.router }

// Session returns a copy of the stored session.
func (s *Supervisor) Session(ctx context.Context, sessionID string) (*Session, error) {
	return s.sessions.Load(ctx, sessionID)
}

// HandleTurn processes one message. An empty sessionID starts a new
// session with a generated ID, returned in TurnResult.SessionID.
//
// A failed workflow is a normal result with Status failed. The error
// return is reserved for turns that did not happen: ErrEmptyMessage,
// cancellation, or a *TurnError when state could not be persisted.
func (s *Supervisor) HandleTurn(ctx context.Context, sessionID, message string) (*TurnResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if sessionID == "" {
		sessionID = s.newID()
	}

	elapsed := observability.TimedOperation()
	ctx, span := s.spans.StartTurnSpan(ctx, sessionID)

	t := &turn{sup: s, message: message, result: &TurnResult{SessionID: sessionID}}
	err := t.run(ctx, sessionID)
	s.spans.EndSpanWithError(span, err)

	if err != nil {
		observability.LogTurnError(s.logger, sessionID, err, elapsed())
		s.metrics.RecordTurn(ctx, t.workflow, "error", time.Duration(elapsed()*float64(time.Millisecond)))
		return nil, err
	}
	res := t.result
	observability.LogTurnComplete(s.logger, sessionID, res.Workflow, string(res.Status), elapsed())
	s.metrics.RecordTurn(ctx, res.Workflow, string(res.Status), time.Duration(elapsed()*float64(time.Millisecond)))
	return res, nil
}

// EndSession deletes every checkpoint of the session and the session
// record.
func (s *Supervisor) EndSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("end session: empty id")
	}
	var errs []error
	if err := s.checkpoints.DeleteSession(ctx, sessionID); err != nil {
		errs = append(errs, fmt.Errorf("delete checkpoints: %w", err))
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		errs = append(errs, fmt.Errorf("delete session: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("end session %s: %w", sessionID, err)
	}
	s.logger.Info("session ended", slog.String("session_id", sessionID))
	return nil
}

// recordDegraded logs and counts a degradation the supervisor itself
// observed. Node degradations are logged by the engine.
func (s *Supervisor) recordDegraded(ctx context.Context, d *cferrors.DegradedError) {
	observability.LogDegraded(s.logger, d.Kind, d.Component, d.Fallback, d.Err)
	s.metrics.RecordDegradation(ctx, d.Kind, d.Component)
}

func (s *Supervisor) driveOptions(cursor *checkpoint.Cursor, onDegraded func(*cferrors.DegradedError)) []careflow.Option {
	opts := []careflow.Option{
		careflow.WithCheckpoint(cursor),
		careflow.WithLogger(s.logger),
		careflow.WithLLM(s.llm),
		careflow.WithMetrics(s.metrics),
		careflow.WithSpans(s.spans),
		careflow.WithClock(s.now),
		careflow.WithDegradationHook(onDegraded),
	}
	if s.settings.MaxSteps > 0 {
		opts = append(opts, careflow.WithMaxSteps(s.settings.MaxSteps))
	}
	return opts
}
