package dew

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDPool_AllocFree(t *testing.T) {
	p := newIDPool()

	a := p.alloc()
	b := p.alloc()
	c := p.alloc()
	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
	assert.Equal(t, 3, c)
	assert.Equal(t, 3, p.MaxIndex())

	p.free(b)
	assert.False(t, p.isAllocated(b))
	assert.Equal(t, 3, p.MaxIndex())

	d := p.alloc()
	assert.Equal(t, 2, d, "freed index should be reused before growing")

	p.free(c)
	p.free(d)
	p.free(a)
	assert.Equal(t, 0, p.MaxIndex())
}

func TestIDPool_GrowsPastChunk(t *testing.T) {
	p := newIDPool()
	var ids []int
	for i := 0; i < chunkBits+5; i++ {
		ids = append(ids, p.alloc())
	}
	require.Equal(t, chunkBits+5, p.MaxIndex())
	for i, id := range ids {
		assert.Equal(t, i+1, id)
	}
}

func TestIDPool_MaxIndexShrinksOnFree(t *testing.T) {
	p := newIDPool()
	for i := 0; i < chunkBits+2; i++ {
		p.alloc()
	}
	require.Equal(t, chunkBits+2, p.MaxIndex())

	p.free(chunkBits + 2)
	assert.Equal(t, chunkBits+1, p.MaxIndex())

	p.free(chunkBits + 1)
	assert.Equal(t, chunkBits, p.MaxIndex())
}
