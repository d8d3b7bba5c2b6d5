package dew

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotes_SetAndTake(t *testing.T) {
	var n notes
	n.set(NoteWExit)
	n.set(NoteAsyncWork)

	got := n.take()
	assert.Equal(t, NoteWExit|NoteAsyncWork, got)
	assert.Equal(t, Note(0), n.take(), "take must clear the bitset")
}

func TestAtomicWorkerStatus_TryTransition(t *testing.T) {
	s := newAtomicWorkerStatus(WorkerOpen)
	assert.Equal(t, WorkerOpen, s.Load())

	assert.True(t, s.TryTransition(WorkerOpen, WorkerReady))
	assert.Equal(t, WorkerReady, s.Load())

	assert.False(t, s.TryTransition(WorkerOpen, WorkerClosed), "transition from stale state must fail")
	assert.True(t, s.TryTransition(WorkerReady, WorkerClosed))
}

func TestTaskStatus_String(t *testing.T) {
	assert.Equal(t, "READY", TaskReady.String())
	assert.Equal(t, "DEAD", TaskDead.String())
	assert.Equal(t, "UNKNOWN", TaskStatus(99).String())
}
