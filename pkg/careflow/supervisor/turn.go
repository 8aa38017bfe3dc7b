package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/randalmurphal/careflow/pkg/careflow"
	"github.com/randalmurphal/careflow/pkg/careflow/checkpoint"
	cferrors "github.com/randalmurphal/careflow/pkg/careflow/errors"
	"github.com/randalmurphal/careflow/pkg/careflow/observability"
)

// TurnResult is what the caller relays to the user.
type TurnResult struct {
	SessionID string          `json:"session_id"`
	Status    careflow.Status `json:"status"`
	Workflow  string          `json:"workflow"`
	// Payload is the question text when suspended, the output text when
	// completed, or a failure summary.
	Payload  string             `json:"payload"`
	Question *careflow.Question `json:"question,omitempty"`
	Output   *careflow.Output   `json:"output,omitempty"`
	Intent   string             `json:"intent,omitempty"`
	Risk     Risk               `json:"risk"`
	// Resumed is set when the message answered a pending question.
	Resumed bool `json:"resumed,omitempty"`
	// Preempted names a suspended workflow parked by an emergency.
	Preempted string `json:"preempted,omitempty"`
	// Restored names a parked workflow the next turn will resume.
	Restored string `json:"restored,omitempty"`
	// Degraded describes every fallback taken during the turn.
	Degraded []string `json:"degraded,omitempty"`
}

type driveMode int

const (
	modeStart driveMode = iota
	modeResume
	modeRecover
)

// opened is a workflow together with its checkpoint, if any.
type opened struct {
	wf     *careflow.Workflow
	cursor *checkpoint.Cursor
	inst   careflow.Instance
	found  bool
	// readFailed marks a cursor opened blind at version 0 after the
	// checkpoint read failed.
	readFailed bool
}

// resumable reports whether the checkpoint holds an instance the turn can
// continue.
func (o *opened) resumable() bool {
	return o.found && (o.inst.Status == careflow.StatusSuspended || o.inst.Status == careflow.StatusRunning)
}

func (o *opened) mode() driveMode {
	if o.inst.Status == careflow.StatusRunning {
		return modeRecover
	}
	return modeResume
}

// turn carries the state of one HandleTurn call.
type turn struct {
	sup      *Supervisor
	message  string
	sess     *Session
	workflow string
	result   *TurnResult
}

func (t *turn) run(ctx context.Context, sessionID string) error {
	s := t.sup

	sess, err := s.sessions.Load(ctx, sessionID)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		sess = NewSession(sessionID, s.now())
	case err != nil:
		return &TurnError{Kind: KindSessionUnavailable, SessionID: sessionID, Err: err}
	}
	t.sess = sess
	observability.LogTurnStart(s.logger, sessionID, sess.ActiveWorkflow != "")

	keywords := DetectEmergency(t.message, s.settings.EmergencyKeywords)
	if len(keywords) > 0 {
		sess.Flag(SafetyFlagEmergencyKeywords)
	}

	target, err := t.resumeTarget(ctx, keywords)
	if err != nil {
		return err
	}
	if target == nil {
		if target, err = t.routeTarget(ctx, keywords); err != nil {
			return err
		}
	}

	out, err := t.drive(ctx, target, keywords)
	if err != nil {
		return err
	}
	t.finish(out)

	sess.AppendTurn(Turn{Role: RoleUser, Content: t.message, Timestamp: s.now()}, s.settings.MaxTurns)
	sess.AppendTurn(Turn{Role: RoleAssistant, Content: t.result.Payload, Timestamp: s.now()}, s.settings.MaxTurns)
	sess.UpdatedAt = s.now()
	if err := s.sessions.Save(ctx, sess); err != nil {
		return &TurnError{Kind: KindSessionUnavailable, SessionID: sessionID, Workflow: t.workflow, Err: err}
	}

	t.result.Intent = sess.Intent
	t.result.Risk = sess.Risk
	return nil
}

// resumeTarget returns the active workflow's checkpoint when the message
// answers it. An emergency keyword preempts the active workflow instead;
// it is parked and nil is returned so the turn is routed.
func (t *turn) resumeTarget(ctx context.Context, keywords []string) (*opened, error) {
	active := t.sess.ActiveWorkflow
	if active == "" {
		return nil, nil
	}
	o, err := t.open(ctx, active)
	if err != nil {
		return nil, err
	}
	if !o.resumable() {
		// Expired or lost: the session no longer has an active workflow.
		t.sess.ActiveWorkflow = ""
		return nil, nil
	}
	if len(keywords) > 0 && active != t.sup.router.EmergencyWorkflow() {
		t.sess.Preempt()
		t.result.Preempted = active
		t.sup.logger.Warn("workflow preempted by emergency",
			slog.String("session_id", t.sess.ID),
			slog.String("workflow", active),
			slog.String("keywords", strings.Join(keywords, ",")),
		)
		return nil, nil
	}
	t.result.Resumed = true
	return o, nil
}

// routeTarget classifies the message and opens the routed workflow.
func (t *turn) routeTarget(ctx context.Context, keywords []string) (*opened, error) {
	s := t.sup

	var name string
	if t.result.Preempted != "" {
		t.sess.RaiseRisk(RiskEmergency)
		name = s.router.Route(t.sess.Intent, RiskEmergency)
	} else {
		cls := s.classifier.Classify(ctx, t.message, t.sess.LastTurns(intentContextTurns))
		for _, d := range cls.Degraded {
			s.recordDegraded(ctx, d)
			t.result.Degraded = append(t.result.Degraded, d.Error())
		}
		t.sess.Intent = cls.Intent
		t.sess.RaiseRisk(cls.Risk)
		name = s.router.Route(cls.Intent, t.sess.Risk)
	}
	observability.LogRouted(s.logger, t.sess.Intent, string(t.sess.Risk), name)

	o, err := t.open(ctx, name)
	if err != nil {
		return nil, err
	}
	if o.resumable() {
		t.result.Resumed = o.inst.Status == careflow.StatusSuspended
	}
	return o, nil
}

// open looks up a workflow and reads its checkpoint. A checkpoint that
// cannot be read or decoded is treated as absent: the workflow starts
// over, which may repeat a question already answered. If an unreadable
// checkpoint still exists, the fresh start cannot replace it and the turn
// fails as CheckpointUnavailable, leaving the stored instance intact.
func (t *turn) open(ctx context.Context, name string) (*opened, error) {
	s := t.sup
	wf, err := s.workflows.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, name)
	}
	key := checkpoint.Key{SessionID: t.sess.ID, Workflow: name}

	cursor, data, err := checkpoint.Open(ctx, s.checkpoints, key)
	if err != nil {
		observability.LogCheckpointError(s.logger, key.String(), "read", err)
		t.result.Degraded = append(t.result.Degraded, fmt.Sprintf("%s: read %s: %v", KindCheckpointUnavailable, key, err))
		return &opened{wf: wf, cursor: checkpoint.NewCursor(s.checkpoints, key, 0), readFailed: true}, nil
	}
	if data == nil {
		return &opened{wf: wf, cursor: cursor}, nil
	}

	inst, err := careflow.DecodeSnapshot(data)
	if err == nil && (inst.SessionID != key.SessionID || inst.Workflow != name) {
		err = fmt.Errorf("snapshot belongs to %s/%s", inst.SessionID, inst.Workflow)
	}
	if err != nil {
		observability.LogCheckpointError(s.logger, key.String(), "decode", err)
		t.result.Degraded = append(t.result.Degraded, fmt.Sprintf("%s: decode %s: %v", KindCheckpointUnavailable, key, err))
		return &opened{wf: wf, cursor: cursor}, nil
	}
	return &opened{wf: wf, cursor: cursor, inst: inst, found: true}, nil
}

// drive runs the workflow and converts persistence failures to TurnErrors.
func (t *turn) drive(ctx context.Context, o *opened, keywords []string) (careflow.Instance, error) {
	s := t.sup
	t.workflow = o.wf.Name()
	opts := s.driveOptions(o.cursor, t.degraded)

	var (
		out careflow.Instance
		err error
	)
	switch {
	case o.resumable() && o.mode() == modeResume:
		out, err = o.wf.Resume(ctx, o.inst, t.message, opts...)
	case o.resumable():
		// A crash left the instance mid-run. Finish the interrupted work,
		// then give it this message if it stopped to ask for one.
		out, err = o.wf.Recover(ctx, o.inst, opts...)
		if err == nil && out.Status == careflow.StatusSuspended {
			t.result.Resumed = true
			out, err = o.wf.Resume(ctx, out, t.message, opts...)
		}
	default:
		out, err = o.wf.Start(ctx, o.wf.NewInstance(t.sess.ID, t.seed(keywords)), opts...)
	}

	if err == nil {
		return out, nil
	}
	var cpErr *careflow.CheckpointError
	if errors.As(err, &cpErr) {
		kind := KindCheckpointUnavailable
		if errors.Is(err, checkpoint.ErrVersionConflict) && !o.readFailed {
			kind = KindCheckpointConflict
			s.metrics.RecordConflict(ctx, t.workflow)
		}
		return out, &TurnError{Kind: kind, SessionID: t.sess.ID, Workflow: t.workflow, Err: err}
	}
	if !out.Status.Terminal() {
		return out, err
	}
	// The engine failed the instance itself; that is a result, not an
	// interrupted turn.
	s.logger.Error("workflow failed",
		slog.String("session_id", t.sess.ID),
		slog.String("workflow", t.workflow),
		slog.String("error", err.Error()),
	)
	return out, nil
}

// seed builds the initial Collected map of a fresh instance. Handoff data
// moves out of the session into the instance.
func (t *turn) seed(keywords []string) map[string]string {
	seed := t.sess.TakeHandoff()
	if seed == nil {
		seed = make(map[string]string)
	}
	maps.Copy(seed, map[string]string{
		SeedMessage: t.message,
		SeedIntent:  t.sess.Intent,
		SeedRisk:    string(t.sess.Risk),
	})
	if len(keywords) > 0 {
		seed[SeedKeywords] = strings.Join(keywords, ",")
	}
	return seed
}

func (t *turn) degraded(d *cferrors.DegradedError) {
	t.result.Degraded = append(t.result.Degraded, d.Error())
}

// finish moves the session forward according to the instance's status.
func (t *turn) finish(out careflow.Instance) {
	res, sess := t.result, t.sess
	res.Workflow = t.workflow
	res.Status = out.Status

	switch out.Status {
	case careflow.StatusSuspended:
		sess.ActiveWorkflow = t.workflow
		res.Question = out.PendingQuestion
		res.Payload = out.PendingQuestion.Text
		return

	case careflow.StatusCompleted:
		res.Output = out.Output
		res.Payload = out.Output.Text
		sess.MergeHandoff(out.Output.Handoff)
		sess.WorkflowHistory = append(sess.WorkflowHistory, t.workflow)

	default:
		res.Payload = fmt.Sprintf("Sorry, something went wrong while handling your request (%s). Please try again.", out.FailureReason)
	}

	sess.ActiveWorkflow = ""
	res.Restored = sess.Restore()
}
