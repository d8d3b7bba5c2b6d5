package dew

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescTable_RegisterLookupUnregister(t *testing.T) {
	dt := newDescTable()
	d := dt.register(5, PollRead, "waiter")

	got := dt.lookup(5, d.seq)
	assert.Same(t, d, got)

	dt.unregister(d)
	assert.Nil(t, dt.lookup(5, d.seq))
}

func TestDescTable_StaleSeqRejected(t *testing.T) {
	dt := newDescTable()
	d1 := dt.register(5, PollRead, nil)
	dt.unregister(d1)
	d2 := dt.register(5, PollWrite, nil)

	assert.Nil(t, dt.lookup(5, d1.seq), "a stale seq for a reused fd must not resolve to the new Desc")
	assert.Same(t, d2, dt.lookup(5, d2.seq))
}
