package careflow

import (
	"log/slog"
	"time"

	cferrors "github.com/randalmurphal/careflow/pkg/careflow/errors"
	"github.com/randalmurphal/careflow/pkg/careflow/checkpoint"
	"github.com/randalmurphal/careflow/pkg/careflow/llm"
	"github.com/randalmurphal/careflow/pkg/careflow/observability"
)

// DefaultMaxSteps caps the steps of a single Start, Resume, or Recover call.
const DefaultMaxSteps = 100

type driveConfig struct {
	maxSteps   int
	logger     *slog.Logger
	llm        llm.Service
	cursor     *checkpoint.Cursor
	metrics    observability.MetricsRecorder
	spans      observability.SpanManager
	now        func() time.Time
	onDegraded func(*cferrors.DegradedError)
}

func newDriveConfig(opts []Option) *driveConfig {
	cfg := &driveConfig{
		maxSteps: DefaultMaxSteps,
		logger:   slog.Default(),
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Option configures a drive.
type Option func(*driveConfig)

// WithMaxSteps sets the step cap per drive. Default: 100.
//
// A drive that neither suspends nor terminates within n steps fails the
// instance with a MaxStepsError.
func WithMaxSteps(n int) Option {
	return func(c *driveConfig) {
		if n > 0 {
			c.maxSteps = n
		}
	}
}

// WithLogger sets the logger. It is enriched per node.
func WithLogger(logger *slog.Logger) Option {
	return func(c *driveConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLLM sets the text service steps reach through Context.LLM.
func WithLLM(svc llm.Service) Option {
	return func(c *driveConfig) { c.llm = svc }
}

// WithCheckpoint persists the instance through cursor after every step and
// deletes the checkpoint when the instance terminates. A save failure,
// including a version conflict, aborts the drive with a CheckpointError.
func WithCheckpoint(cursor *checkpoint.Cursor) Option {
	return func(c *driveConfig) { c.cursor = cursor }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *driveConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithSpans enables per-node tracing spans.
func WithSpans(s observability.SpanManager) Option {
	return func(c *driveConfig) {
		if s != nil {
			c.spans = s
		}
	}
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *driveConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithDegradationHook receives every degradation reported by a step.
func WithDegradationHook(fn func(*cferrors.DegradedError)) Option {
	return func(c *driveConfig) { c.onDegraded = fn }
}
