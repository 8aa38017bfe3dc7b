package careflow

import (
	"context"
	"testing"

	"github.com/randalmurphal/careflow/pkg/careflow/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var intakeKey = checkpoint.Key{SessionID: "s-1", Workflow: "intake"}

func loadInstance(t *testing.T, store checkpoint.Store) (Instance, *checkpoint.Cursor) {
	t.Helper()
	cursor, data, err := checkpoint.Open(context.Background(), store, intakeKey)
	require.NoError(t, err)
	require.NotNil(t, data, "checkpoint should exist")
	inst, err := DecodeSnapshot(data)
	require.NoError(t, err)
	return inst, cursor
}

func TestCheckpoint_SavedAfterEveryStep(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	wf := twoQuestionWorkflow()
	ctx := context.Background()
	clock := WithClock(fixedClock())

	cursor := checkpoint.NewCursor(store, intakeKey, 0)
	inst, err := wf.Start(ctx, wf.NewInstance("s-1", nil), WithCheckpoint(cursor), clock)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cursor.Version())

	stored, cursor := loadInstance(t, store)
	assert.Equal(t, inst, stored)
	assert.Equal(t, StatusSuspended, stored.Status)

	// The name step advances and the city step suspends: two saves.
	inst, err = wf.Resume(ctx, stored, "Asha", WithCheckpoint(cursor), clock)
	require.NoError(t, err)
	assert.Equal(t, int64(3), cursor.Version())

	stored, cursor = loadInstance(t, store)
	assert.Equal(t, "city", stored.PendingQuestion.Field)
	assert.Equal(t, inst, stored)

	inst, err = wf.Resume(ctx, stored, "Pune", WithCheckpoint(cursor), clock)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, inst.Status)
	assert.Equal(t, int64(0), cursor.Version())

	_, err = store.Get(ctx, intakeKey)
	assert.ErrorIs(t, err, checkpoint.ErrNotFound, "terminal instances leave no checkpoint")
}

func TestCheckpoint_DoubleResumeConflicts(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	wf := twoQuestionWorkflow()
	ctx := context.Background()

	_, err := wf.Start(ctx, wf.NewInstance("s-1", nil), WithCheckpoint(checkpoint.NewCursor(store, intakeKey, 0)))
	require.NoError(t, err)

	instA, cursorA := loadInstance(t, store)
	instB, cursorB := loadInstance(t, store)
	require.Equal(t, cursorA.Version(), cursorB.Version())

	_, errA := wf.Resume(ctx, instA, "Asha", WithCheckpoint(cursorA))
	gotB, errB := wf.Resume(ctx, instB, "Ravi", WithCheckpoint(cursorB))

	require.NoError(t, errA)
	var cpErr *CheckpointError
	require.ErrorAs(t, errB, &cpErr)
	assert.Equal(t, "save", cpErr.Op)
	assert.ErrorIs(t, errB, checkpoint.ErrVersionConflict)
	assert.False(t, gotB.Status.Terminal())

	stored, _ := loadInstance(t, store)
	assert.Equal(t, "Asha", stored.Value("name"), "the losing writer changed nothing")
}

func TestCheckpoint_DoubleResumeAfterCompletionConflicts(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	wf := NewGraph("intake").
		AddNode("name", ask("name")).
		AddStep("done", done).
		AddEdge("name", "done").
		AddEdge("done", END).
		SetEntry("name").
		mustCompile()
	ctx := context.Background()

	_, err := wf.Start(ctx, wf.NewInstance("s-1", nil), WithCheckpoint(checkpoint.NewCursor(store, intakeKey, 0)))
	require.NoError(t, err)
	instA, cursorA := loadInstance(t, store)
	instB, cursorB := loadInstance(t, store)

	gotA, errA := wf.Resume(ctx, instA, "Asha", WithCheckpoint(cursorA))
	require.NoError(t, errA)
	assert.Equal(t, StatusCompleted, gotA.Status)

	_, errB := wf.Resume(ctx, instB, "Ravi", WithCheckpoint(cursorB))
	assert.ErrorIs(t, errB, checkpoint.ErrVersionConflict)
}

func TestCheckpoint_SaveFailureSurfaces(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	require.NoError(t, store.Close())
	wf := twoQuestionWorkflow()

	inst, err := wf.Start(context.Background(), wf.NewInstance("s-1", nil),
		WithCheckpoint(checkpoint.NewCursor(store, intakeKey, 0)))

	var cpErr *CheckpointError
	require.ErrorAs(t, err, &cpErr)
	assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)
	assert.Equal(t, "name", cpErr.NodeID)
	assert.Equal(t, StatusSuspended, inst.Status)
}

func TestCheckpoint_CrashRecovery(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	wf := NewGraph("intake").
		AddStep("work", func(_ Context, in Instance, _ *string) (Instance, Outcome) {
			in.Collect("work", "done")
			cancel() // the process dies after this step is persisted
			return in, Continue()
		}).
		AddStep("done", done).
		AddEdge("work", "done").
		AddEdge("done", END).
		SetEntry("work").
		mustCompile()

	_, err := wf.Start(ctx, wf.NewInstance("s-1", nil), WithCheckpoint(checkpoint.NewCursor(store, intakeKey, 0)))
	require.ErrorIs(t, err, context.Canceled)

	stored, cursor := loadInstance(t, store)
	assert.Equal(t, StatusRunning, stored.Status)
	assert.Equal(t, "done", stored.CurrentNode)

	inst, err := wf.Recover(context.Background(), stored, WithCheckpoint(cursor))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, inst.Status)
	assert.Equal(t, "done", inst.Value("work"))
}

// Serializing between turns must not change behavior.
func TestSnapshot_RoundTripEquivalence(t *testing.T) {
	fields := []string{"body_type", "digestion", "sleep", "temperament", "skin", "energy"}
	answers := []string{"lean", "irregular", "light", "anxious"}
	ctx := context.Background()

	wf := gatherWorkflow(4, fields...)

	direct, err := wf.Start(ctx, wf.NewInstance("s-1", nil), WithClock(fixedClock()))
	require.NoError(t, err)
	clockA := fixedClock()
	clockA()
	for _, a := range answers {
		direct, err = wf.Resume(ctx, direct, a, WithClock(clockA))
		require.NoError(t, err)
	}

	viaSnapshot, err := wf.Start(ctx, wf.NewInstance("s-1", nil), WithClock(fixedClock()))
	require.NoError(t, err)
	clockB := fixedClock()
	clockB()
	for _, a := range answers {
		data, err := EncodeSnapshot(viaSnapshot)
		require.NoError(t, err)
		viaSnapshot, err = DecodeSnapshot(data)
		require.NoError(t, err)

		viaSnapshot, err = wf.Resume(ctx, viaSnapshot, a, WithClock(clockB))
		require.NoError(t, err)
	}

	assert.Equal(t, direct, viaSnapshot)
	assert.Equal(t, StatusCompleted, direct.Status)
	assert.True(t, direct.Output.IncompleteAssessment)
}

func TestDecodeSnapshot_Errors(t *testing.T) {
	_, err := DecodeSnapshot([]byte(`{"format": 2, "instance": {}}`))
	assert.ErrorIs(t, err, ErrSnapshotFormat)

	_, err = DecodeSnapshot([]byte(`not json`))
	assert.Error(t, err)

	bad := `{"format": 1, "instance": {"session_id": "s", "workflow": "w", "status": "suspended", "max_iterations": 3}}`
	_, err = DecodeSnapshot([]byte(bad))
	assert.ErrorIs(t, err, ErrInvalidInstance)
}
