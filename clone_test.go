package dew

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cloneInner struct {
	Value int
}

type cloneOuter struct {
	Name    string
	Inner   *cloneInner
	Numbers []int
	Tags    map[string]int
}

func TestClone_ScalarsAndStrings(t *testing.T) {
	v, err := Clone(42)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = Clone("hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestClone_DeepCopyIndependence(t *testing.T) {
	src := &cloneOuter{
		Name:    "root",
		Inner:   &cloneInner{Value: 7},
		Numbers: []int{1, 2, 3},
		Tags:    map[string]int{"a": 1},
	}
	out, err := Clone(src)
	require.NoError(t, err)

	dst := out.(*cloneOuter)
	require.NotSame(t, src, dst)
	require.NotSame(t, src.Inner, dst.Inner)
	assert.Equal(t, src.Name, dst.Name)
	assert.Equal(t, src.Inner.Value, dst.Inner.Value)

	dst.Inner.Value = 99
	dst.Numbers[0] = 100
	dst.Tags["a"] = 2

	assert.Equal(t, 7, src.Inner.Value)
	assert.Equal(t, 1, src.Numbers[0])
	assert.Equal(t, 1, src.Tags["a"])
}

func TestClone_PreservesSharedPointer(t *testing.T) {
	shared := &cloneInner{Value: 3}
	type pair struct {
		A *cloneInner
		B *cloneInner
	}
	src := &pair{A: shared, B: shared}

	out, err := Clone(src)
	require.NoError(t, err)
	dst := out.(*pair)

	assert.Same(t, dst.A, dst.B, "sharing within the cloned value must be preserved")
	assert.NotSame(t, src.A, dst.A)
}

func TestClone_RejectsChannels(t *testing.T) {
	_, err := Clone(make(chan int))
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeNotSupported))
}

func TestClone_ByteSliceFastPath(t *testing.T) {
	src := []byte("payload")
	out, err := Clone(src)
	require.NoError(t, err)
	dst := out.([]byte)
	assert.Equal(t, src, dst)
	dst[0] = 'X'
	assert.Equal(t, byte('p'), src[0])
}
