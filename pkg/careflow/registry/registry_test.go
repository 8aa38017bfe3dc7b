package registry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndGet(t *testing.T) {
	r := New[string, int]()
	assert.Equal(t, 0, r.Len())

	require.NoError(t, r.Register("triage", 1))
	require.NoError(t, r.Register("emergency", 2))

	v, ok := r.Get("triage")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = r.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 0, v)
	assert.True(t, r.Has("emergency"))
	assert.Equal(t, 2, r.Len())
}

func TestRegisterDuplicate(t *testing.T) {
	r := New[string, string]()
	require.NoError(t, r.Register("triage", "first"))

	err := r.Register("triage", "second")
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Contains(t, err.Error(), "triage")

	v, _ := r.Get("triage")
	assert.Equal(t, "first", v, "duplicate must not overwrite")

	r.Replace("triage", "second")
	v, _ = r.Get("triage")
	assert.Equal(t, "second", v)
}

func TestLookupAndMustGet(t *testing.T) {
	r := New[string, int]()
	require.NoError(t, r.Register("a", 7))

	v, err := r.Lookup("a")
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = r.Lookup("b")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 7, r.MustGet("a"))
	assert.PanicsWithValue(t, "registry: b: not registered", func() { r.MustGet("b") })
}

func TestKeysSortedAndDelete(t *testing.T) {
	r := New[string, int]()
	for i, k := range []string{"triage", "drafting", "questionnaire"} {
		require.NoError(t, r.Register(k, i))
	}
	assert.Equal(t, []string{"drafting", "questionnaire", "triage"}, r.Keys())

	r.Delete("drafting")
	r.Delete("never")
	assert.Equal(t, []string{"questionnaire", "triage"}, r.Keys())
}

func TestRange(t *testing.T) {
	r := New[string, int]()
	for i, k := range []string{"c", "a", "b"} {
		require.NoError(t, r.Register(k, i))
	}

	var seen []string
	r.Range(func(k string, _ int) bool {
		seen = append(seen, k)
		return true
	})
	assert.Equal(t, []string{"a", "b", "c"}, seen)

	count := 0
	r.Range(func(string, int) bool {
		count++
		return false
	})
	assert.Equal(t, 1, count)

	// Mutating during Range does not deadlock.
	r.Range(func(k string, _ int) bool {
		r.Delete(k)
		return true
	})
	assert.Equal(t, 0, r.Len())
}

func TestConcurrentRegister(t *testing.T) {
	r := New[string, int]()
	var wins atomic.Int32
	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Register("shared", i) == nil {
				wins.Add(1)
			}
			_ = r.Register(fmt.Sprintf("k%d", i), i)
			r.Has("shared")
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, 51, r.Len())
}
