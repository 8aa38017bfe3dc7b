package careflow

import (
	"context"
	"log/slog"
	"time"

	cferrors "github.com/randalmurphal/careflow/pkg/careflow/errors"
	"github.com/randalmurphal/careflow/pkg/careflow/llm"
	"github.com/randalmurphal/careflow/pkg/careflow/observability"
)

// Context is what a step sees. It extends context.Context with the
// services a step may use and the identity of the node being run.
type Context interface {
	context.Context

	// Logger returns a logger enriched with session, workflow, and node.
	// Never returns nil.
	Logger() *slog.Logger

	// LLM returns the text service, or nil if none is configured.
	LLM() llm.Service

	// SessionID returns the session the instance belongs to.
	SessionID() string

	// Workflow returns the workflow name.
	Workflow() string

	// NodeID returns the node being executed.
	NodeID() string

	// Now returns the drive clock's current time.
	Now() time.Time

	// Degraded reports that the step substituted a safe default after a
	// dependency failed. It is logged, counted, and passed to the
	// degradation hook; the step carries on.
	Degraded(kind, fallback string, err error)
}

type stepContext struct {
	context.Context

	cfg       *driveConfig
	logger    *slog.Logger
	sessionID string
	workflow  string
	nodeID    string
}

func (c *stepContext) Logger() *slog.Logger { return c.logger }
func (c *stepContext) LLM() llm.Service     { return c.cfg.llm }
func (c *stepContext) SessionID() string    { return c.sessionID }
func (c *stepContext) Workflow() string     { return c.workflow }
func (c *stepContext) NodeID() string       { return c.nodeID }
func (c *stepContext) Now() time.Time       { return c.cfg.now() }

func (c *stepContext) Degraded(kind, fallback string, err error) {
	d := cferrors.Degraded(kind, c.workflow+"."+c.nodeID, fallback, err)
	observability.LogDegraded(c.logger, d.Kind, d.Component, d.Fallback, d.Err)
	c.cfg.metrics.RecordDegradation(c, d.Kind, d.Component)
	if c.cfg.onDegraded != nil {
		c.cfg.onDegraded(d)
	}
}

// NewContext builds the Context a step would receive for nodeID of in.
// The engine does this itself; use it to call a Step directly in tests.
func NewContext(parent context.Context, in Instance, nodeID string, opts ...Option) Context {
	cfg := newDriveConfig(opts)
	return cfg.stepContext(parent, in, nodeID)
}

func (cfg *driveConfig) stepContext(parent context.Context, in Instance, nodeID string) *stepContext {
	return &stepContext{
		Context:   parent,
		cfg:       cfg,
		logger:    observability.EnrichLogger(cfg.logger, in.SessionID, in.Workflow, nodeID),
		sessionID: in.SessionID,
		workflow:  in.Workflow,
		nodeID:    nodeID,
	}
}
