package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ClaudeCLI implements Service by running the claude binary in print mode.
type ClaudeCLI struct {
	path    string
	model   string
	workdir string
	timeout time.Duration
}

// ClaudeOption configures ClaudeCLI.
type ClaudeOption func(*ClaudeCLI)

// NewClaudeCLI creates a client for the claude binary.
// Assumes "claude" is available in PATH unless overridden with WithClaudePath.
func NewClaudeCLI(opts ...ClaudeOption) *ClaudeCLI {
	c := &ClaudeCLI{
		path:    "claude",
		timeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithClaudePath sets the path to the claude binary.
func WithClaudePath(path string) ClaudeOption {
	return func(c *ClaudeCLI) { c.path = path }
}

// WithClaudeModel sets the model.
func WithClaudeModel(model string) ClaudeOption {
	return func(c *ClaudeCLI) { c.model = model }
}

// WithWorkdir sets the working directory for claude commands.
func WithWorkdir(dir string) ClaudeOption {
	return func(c *ClaudeCLI) { c.workdir = dir }
}

// WithTimeout bounds each call.
func WithTimeout(d time.Duration) ClaudeOption {
	return func(c *ClaudeCLI) { c.timeout = d }
}

// Infer implements Service.
func (c *ClaudeCLI) Infer(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.path, c.buildArgs(req)...)
	if c.workdir != "" {
		cmd.Dir = c.workdir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return nil, NewError("claude", KindTransient, ctxErr)
			}
			return nil, NewError("claude", KindPermanent, ctxErr)
		}
		errMsg := stderr.String()
		kind := KindPermanent
		if isRetryableMessage(errMsg) {
			kind = KindTransient
		}
		return nil, NewError("claude", kind, fmt.Errorf("%w: %s", err, strings.TrimSpace(errMsg)))
	}

	return finish("claude", req, strings.TrimSpace(stdout.String()), c.model, start)
}

// buildArgs constructs CLI arguments from a request.
func (c *ClaudeCLI) buildArgs(req Request) []string {
	args := []string{"--print"}

	if system := systemPrompt(req); system != "" {
		args = append(args, "--system-prompt", system)
	}
	if c.model != "" {
		args = append(args, "--model", c.model)
	}

	if prompt := strings.TrimSpace(req.UserContent); prompt != "" {
		args = append(args, "-p", prompt)
	}
	return args
}

// systemPrompt appends the JSON instruction for structured requests.
func systemPrompt(req Request) string {
	if !req.Structured() {
		return req.SystemPrompt
	}
	instruction := "Respond with a single JSON object and nothing else, shaped like: " + req.SchemaHint
	if req.SystemPrompt == "" {
		return instruction
	}
	return req.SystemPrompt + "\n\n" + instruction
}
