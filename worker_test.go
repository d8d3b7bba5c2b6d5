package dew

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_SpawnRunsAndCloses(t *testing.T) {
	owner, err := NewScheduler()
	require.NoError(t, err)

	w, err := SpawnWorker(owner, 0, func(c *Context) error {
		return nil
	})
	require.NoError(t, err)
	require.NotEqual(t, WorkerClosed, WorkerOpen)

	select {
	case <-w.done:
	case <-time.After(time.Second):
		t.Fatal("worker did not close")
	}
	assert.Equal(t, WorkerClosed, w.Status())
	assert.True(t, w.Closed())
}

func TestWorker_SendStructurallyClonesBody(t *testing.T) {
	owner, err := NewScheduler()
	require.NoError(t, err)

	received := make(chan map[string]any, 1)
	w, err := SpawnWorker(owner, 0, func(c *Context) error {
		m, err := c.Recv()
		if err != nil {
			return err
		}
		received <- m.Body.(map[string]any)
		return nil
	})
	require.NoError(t, err)

	src := map[string]any{"n": int64(5)}
	require.NoError(t, w.Send(context.Background(), 0, src))
	src["n"] = int64(999) // mutating the original after Send must not affect the clone

	select {
	case got := <-received:
		assert.Equal(t, int64(5), got["n"])
	case <-time.After(time.Second):
		t.Fatal("worker never received message")
	}
}
