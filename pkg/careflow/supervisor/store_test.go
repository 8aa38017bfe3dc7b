package supervisor_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/careflow/pkg/careflow/supervisor"
)

func sessionStoreContract(t *testing.T, store supervisor.SessionStore) {
	ctx := context.Background()

	_, err := store.Load(ctx, "missing")
	assert.ErrorIs(t, err, supervisor.ErrSessionNotFound)

	s := supervisor.NewSession("s1", testEpoch)
	s.Intent = supervisor.IntentSymptom
	s.ActiveWorkflow = supervisor.WorkflowTriage
	s.AppendTurn(supervisor.Turn{Role: supervisor.RoleUser, Content: "headache", Timestamp: testEpoch}, 0)
	s.MergeHandoff(map[string]string{"duration": "two days"})
	s.Flag(supervisor.SafetyFlagEmergencyKeywords)
	require.NoError(t, store.Save(ctx, s))

	got, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, s.Intent, got.Intent)
	assert.Equal(t, s.ActiveWorkflow, got.ActiveWorkflow)
	assert.Equal(t, s.HandoffData, got.HandoffData)
	assert.Equal(t, s.SafetyFlags, got.SafetyFlags)
	require.Len(t, got.RecentTurns, 1)
	assert.Equal(t, "headache", got.RecentTurns[0].Content)
	assert.True(t, testEpoch.Equal(got.RecentTurns[0].Timestamp))

	// The store holds its own copy.
	got.ActiveWorkflow = ""
	again, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, supervisor.WorkflowTriage, again.ActiveWorkflow)

	assert.Error(t, store.Save(ctx, &supervisor.Session{}))

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Load(ctx, "s1")
	assert.ErrorIs(t, err, supervisor.ErrSessionNotFound)
	assert.NoError(t, store.Delete(ctx, "s1"))
}

func TestMemorySessionStore(t *testing.T) {
	sessionStoreContract(t, supervisor.NewMemorySessionStore(time.Hour))
}

func TestRedisSessionStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionStoreContract(t, supervisor.NewRedisSessionStore(client, time.Hour))
}

func TestMemorySessionStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := testEpoch
	store := supervisor.NewMemorySessionStore(30 * time.Minute).WithClock(func() time.Time { return now })

	require.NoError(t, store.Save(ctx, supervisor.NewSession("s1", now)))
	now = now.Add(29 * time.Minute)
	_, err := store.Load(ctx, "s1")
	require.NoError(t, err)

	// Saving slides the expiry window.
	require.NoError(t, store.Save(ctx, supervisor.NewSession("s1", now)))
	now = now.Add(29 * time.Minute)
	_, err = store.Load(ctx, "s1")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = store.Load(ctx, "s1")
	assert.ErrorIs(t, err, supervisor.ErrSessionNotFound)
}

func TestRedisSessionStore_TTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	store := supervisor.NewRedisSessionStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)

	require.NoError(t, store.Save(ctx, supervisor.NewSession("s1", testEpoch)))
	assert.Equal(t, time.Hour, mr.TTL("session:s1"))

	mr.FastForward(2 * time.Hour)
	_, err := store.Load(ctx, "s1")
	assert.ErrorIs(t, err, supervisor.ErrSessionNotFound)
}

func TestRedisSessionStore_CorruptRecord(t *testing.T) {
	mr := miniredis.RunT(t)
	store := supervisor.NewRedisSessionStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0)
	require.NoError(t, mr.Set("session:s1", "{not json"))

	_, err := store.Load(context.Background(), "s1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, supervisor.ErrSessionNotFound)
}

func TestRedisSessionStore_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	store := supervisor.NewRedisSessionStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0)
	mr.Close()

	_, err := store.Load(context.Background(), "s1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, supervisor.ErrSessionNotFound)
}
