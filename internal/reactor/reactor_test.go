package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_DrainsWhenNoInterests(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	result, err := r.Dispatch()
	require.NoError(t, err)
	assert.Equal(t, DispatchDrained, result)
}

func TestSubmitTimer_FiresOnce(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	fired := 0
	r.SubmitTimer(5*time.Millisecond, false, func() { fired++ })

	result, err := r.Dispatch()
	require.NoError(t, err)
	assert.Equal(t, DispatchDrained, result)
	assert.Equal(t, 1, fired)
}

func TestSubmitTimer_Persistent(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	fired := 0
	var h Handle
	h = r.SubmitTimer(2*time.Millisecond, true, func() {
		fired++
		if fired >= 3 {
			r.FreeHandle(h)
			r.Stop()
		}
	})

	result, err := r.Dispatch()
	require.NoError(t, err)
	assert.Equal(t, DispatchStopped, result)
	assert.GreaterOrEqual(t, fired, 3)
}

func TestStop_UnwindsBlockedDispatch(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	// A long timer keeps the reactor from draining on its own; Stop should
	// still unwind Dispatch promptly.
	r.SubmitTimer(time.Hour, false, func() {})

	done := make(chan DispatchResult, 1)
	go func() {
		res, _ := r.Dispatch()
		done <- res
	}()

	time.Sleep(10 * time.Millisecond)
	r.Stop()

	select {
	case res := <-done:
		assert.Equal(t, DispatchStopped, res)
	case <-time.After(time.Second):
		t.Fatal("Dispatch did not unwind after Stop")
	}
}

func TestPost_RunsOnDispatchGoroutine(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	// Keep the reactor alive long enough for the posted func to run.
	r.SubmitTimer(50*time.Millisecond, false, func() {})

	ran := make(chan struct{})
	go r.Post(func() { close(ran) })

	_, err = r.Dispatch()
	require.NoError(t, err)

	select {
	case <-ran:
	default:
		t.Fatal("posted function did not run during Dispatch")
	}
}
