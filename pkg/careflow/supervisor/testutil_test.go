package supervisor_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/careflow/pkg/careflow"
	"github.com/randalmurphal/careflow/pkg/careflow/checkpoint"
	"github.com/randalmurphal/careflow/pkg/careflow/confidence"
	"github.com/randalmurphal/careflow/pkg/careflow/llm"
	"github.com/randalmurphal/careflow/pkg/careflow/registry"
	"github.com/randalmurphal/careflow/pkg/careflow/supervisor"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time {
	var mu sync.Mutex
	now := testEpoch
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

// labels returns a text service answering classifier requests with fixed
// labels.
func labels(intent, risk string) *llm.MockService {
	return llm.NewMockService().WithHandler(labelHandler(intent, risk))
}

func labelHandler(intent, risk string) func(llm.Request) (string, error) {
	return func(req llm.Request) (string, error) {
		switch {
		case strings.Contains(req.SchemaHint, `"intent"`):
			return `{"intent": "` + intent + `"}`, nil
		case strings.Contains(req.SchemaHint, `"risk_level"`):
			return `{"risk_level": "` + risk + `"}`, nil
		}
		return "", errors.New("unexpected request")
	}
}

func completeWith(text string, data map[string]string) careflow.StepFunc {
	return func(_ careflow.Context, in careflow.Instance, _ *string) (careflow.Instance, careflow.Outcome) {
		return in, careflow.Complete(careflow.Output{Text: text, Data: data})
	}
}

func gatherWorkflow(name string, maxIterations int, handoff []string, fields []confidence.Field, out careflow.StepFunc) *careflow.Workflow {
	loop := &confidence.Loop{Name: "gather", Fields: fields, Next: "respond"}
	g := careflow.NewGraph(name).SetEntry("gather").SetMaxIterations(maxIterations).SetHandoffKeys(handoff...)
	wf, err := loop.Attach(g).
		AddNode("respond", out).
		AddEdge("respond", careflow.END).
		Compile()
	if err != nil {
		panic(err)
	}
	return wf
}

func singleStep(name string, step careflow.StepFunc) *careflow.Workflow {
	wf, err := careflow.NewGraph(name).
		AddNode("run", step).
		AddEdge("run", careflow.END).
		SetEntry("run").
		Compile()
	if err != nil {
		panic(err)
	}
	return wf
}

// testWorkflows registers small stand-ins for every routed workflow.
func testWorkflows() *supervisor.Workflows {
	reg := registry.New[string, *careflow.Workflow]()

	triage := gatherWorkflow(supervisor.WorkflowTriage, 3, []string{"duration", "triage_outcome"},
		[]confidence.Field{{Name: "duration", Question: "How long has this been going on?"}, {Name: "severity"}},
		completeWith("see a doctor", map[string]string{"triage_outcome": "needs_doctor"}))

	questionnaire := gatherWorkflow(supervisor.WorkflowQuestionnaire, 3, []string{"sleep"},
		[]confidence.Field{
			{Name: "body_type"}, {Name: "digestion"}, {Name: "sleep"},
			{Name: "temperament"}, {Name: "skin"}, {Name: "energy"},
		},
		completeWith("vata", nil))

	scheduling := singleStep(supervisor.WorkflowScheduling, func(_ careflow.Context, in careflow.Instance, _ *string) (careflow.Instance, careflow.Outcome) {
		return in, careflow.Complete(careflow.Output{Text: "booking for " + in.Value("triage_outcome")})
	})

	drafting := singleStep(supervisor.WorkflowDrafting, completeWith("draft", nil))

	emergency := singleStep(supervisor.WorkflowEmergency, func(_ careflow.Context, in careflow.Instance, _ *string) (careflow.Instance, careflow.Outcome) {
		return in, careflow.Complete(careflow.Output{
			Text: "Call 112 now. Detected: " + in.Value(supervisor.SeedKeywords),
			Data: map[string]string{"emergency_type": supervisor.EmergencyType(in.Value(supervisor.SeedMessage), nil)},
		})
	})

	for _, wf := range []*careflow.Workflow{triage, questionnaire, scheduling, drafting, emergency} {
		if err := reg.Register(wf.Name(), wf); err != nil {
			panic(err)
		}
	}
	return reg
}

type harness struct {
	sup         *supervisor.Supervisor
	checkpoints checkpoint.Store
	sessions    *supervisor.MemorySessionStore
	llm         *llm.MockService
}

func newHarness(t *testing.T, svc *llm.MockService, opts ...supervisor.Option) *harness {
	t.Helper()
	return newHarnessWith(t, testWorkflows(), checkpoint.NewMemoryStore(), svc, opts...)
}

func newHarnessWith(t *testing.T, reg *supervisor.Workflows, store checkpoint.Store, svc *llm.MockService, opts ...supervisor.Option) *harness {
	t.Helper()
	sessions := supervisor.NewMemorySessionStore(time.Hour)
	all := append([]supervisor.Option{supervisor.WithLLM(svc), supervisor.WithClock(fixedClock())}, opts...)
	sup, err := supervisor.New(reg, store, sessions, all...)
	require.NoError(t, err)
	return &harness{sup: sup, checkpoints: store, sessions: sessions, llm: svc}
}

func (h *harness) turn(t *testing.T, sessionID, message string) *supervisor.TurnResult {
	t.Helper()
	res, err := h.sup.HandleTurn(context.Background(), sessionID, message)
	require.NoError(t, err)
	return res
}

func (h *harness) session(t *testing.T, id string) *supervisor.Session {
	t.Helper()
	s, err := h.sup.Session(context.Background(), id)
	require.NoError(t, err)
	return s
}

func (h *harness) checkpointStatus(t *testing.T, sessionID, workflow string) careflow.Status {
	t.Helper()
	rec, err := h.checkpoints.Get(context.Background(), checkpoint.Key{SessionID: sessionID, Workflow: workflow})
	if errors.Is(err, checkpoint.ErrNotFound) {
		return ""
	}
	require.NoError(t, err)
	inst, err := careflow.DecodeSnapshot(rec.Data)
	require.NoError(t, err)
	return inst.Status
}

// hookStore wraps a store and lets tests intercept calls.
type hookStore struct {
	checkpoint.Store
	beforePut func(key checkpoint.Key) error
	beforeGet func(key checkpoint.Key) error
}

func (h *hookStore) Put(ctx context.Context, key checkpoint.Key, data []byte, expected int64) (int64, error) {
	if h.beforePut != nil {
		if err := h.beforePut(key); err != nil {
			return 0, err
		}
	}
	return h.Store.Put(ctx, key, data, expected)
}

func (h *hookStore) Get(ctx context.Context, key checkpoint.Key) (*checkpoint.Record, error) {
	if h.beforeGet != nil {
		if err := h.beforeGet(key); err != nil {
			return nil, err
		}
	}
	return h.Store.Get(ctx, key)
}
