package workflows_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/careflow/pkg/careflow"
	cferrors "github.com/randalmurphal/careflow/pkg/careflow/errors"
	"github.com/randalmurphal/careflow/pkg/careflow/llm"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time {
	now := testEpoch
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

// reply answers requests whose schema hint names key. An empty key
// matches free-text requests.
type reply struct {
	key     string
	content string
	err     error
}

// script returns a text service that answers with the first matching
// reply. Unmatched requests fail permanently.
func script(replies ...reply) *llm.MockService {
	return llm.NewMockService().WithHandler(func(req llm.Request) (string, error) {
		for _, r := range replies {
			if r.key == "" && req.SchemaHint == "" ||
				r.key != "" && strings.Contains(req.SchemaHint, `"`+r.key+`"`) {
				return r.content, r.err
			}
		}
		return "", llm.NewError("mock", llm.KindPermanent, errors.New("unscripted request"))
	})
}

// harness drives one workflow and records its degradations.
type harness struct {
	t        *testing.T
	wf       *careflow.Workflow
	svc      llm.Service
	clock    func() time.Time
	degraded []*cferrors.DegradedError
}

func newHarness(t *testing.T, wf *careflow.Workflow, err error, svc llm.Service) *harness {
	t.Helper()
	require.NoError(t, err)
	return &harness{t: t, wf: wf, svc: svc, clock: fixedClock()}
}

func (h *harness) opts() []careflow.Option {
	return []careflow.Option{
		careflow.WithLLM(h.svc),
		careflow.WithClock(h.clock),
		careflow.WithDegradationHook(func(d *cferrors.DegradedError) {
			h.degraded = append(h.degraded, d)
		}),
	}
}

func (h *harness) start(seed map[string]string) careflow.Instance {
	h.t.Helper()
	out, err := h.wf.Start(context.Background(), h.wf.NewInstance("s1", seed), h.opts()...)
	require.NoError(h.t, err)
	return out
}

func (h *harness) resume(in careflow.Instance, answer string) careflow.Instance {
	h.t.Helper()
	require.Equal(h.t, careflow.StatusSuspended, in.Status)
	out, err := h.wf.Resume(context.Background(), in, answer, h.opts()...)
	require.NoError(h.t, err)
	return out
}

// components lists the degraded components in order.
func (h *harness) components() []string {
	var out []string
	for _, d := range h.degraded {
		out = append(out, d.Component)
	}
	return out
}

func requireCompleted(t *testing.T, in careflow.Instance) *careflow.Output {
	t.Helper()
	require.Equal(t, careflow.StatusCompleted, in.Status, "failure: %s", in.FailureReason)
	require.NotNil(t, in.Output)
	return in.Output
}
