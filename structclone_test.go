package dew

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, v any) any {
	t.Helper()
	data, err := Encode(v)
	require.NoError(t, err)
	out, err := Decode(data)
	require.NoError(t, err)
	return out
}

func TestStructclone_Scalars(t *testing.T) {
	assert.Equal(t, nil, roundTrip(t, nil))
	assert.Equal(t, true, roundTrip(t, true))
	assert.Equal(t, false, roundTrip(t, false))
	assert.Equal(t, int64(3), roundTrip(t, 3))     // fits INTZ embed
	assert.Equal(t, int64(-17), roundTrip(t, -17)) // full INT
	assert.Equal(t, int64(1<<40), roundTrip(t, int64(1)<<40))
	assert.Equal(t, 3.5, roundTrip(t, 3.5))
}

func TestStructclone_ShortAndLongStrings(t *testing.T) {
	short := "hello"
	long := strings.Repeat("x", 500)
	assert.Equal(t, short, roundTrip(t, short))
	assert.Equal(t, long, roundTrip(t, long))
}

func TestStructclone_ArrayAndDict(t *testing.T) {
	arr := []any{int64(1), "two", true, nil}
	out := roundTrip(t, arr)
	assert.Equal(t, arr, out)

	dict := map[string]any{"a": int64(1), "b": "two"}
	out = roundTrip(t, dict)
	assert.Equal(t, dict, out)
}

func TestStructclone_Buf(t *testing.T) {
	buf := NewBuf([]byte("payload"))
	out := roundTrip(t, buf)
	got, ok := out.(Buf)
	require.True(t, ok)
	assert.Equal(t, buf.Bytes(), got.Bytes())
}

func TestStructclone_PreservesSharedReference(t *testing.T) {
	shared := []any{int64(1), int64(2)}
	outer := []any{shared, shared}

	data, err := Encode(outer)
	require.NoError(t, err)
	decoded, err := Decode(data)
	require.NoError(t, err)

	dec := decoded.([]any)
	require.Len(t, dec, 2)
	a := dec[0].([]any)
	b := dec[1].([]any)
	assert.Equal(t, a, b)

	// identical slice header: sharing survived the round trip, not merely
	// equal contents.
	a[0] = int64(99)
	assert.Equal(t, int64(99), b[0])
}

func TestStructclone_RejectsUnsupportedType(t *testing.T) {
	_, err := Encode(make(chan int))
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeNotSupported))
}

func TestStructclone_RejectsTruncatedInput(t *testing.T) {
	_, err := Decode([]byte{0, 1})
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeInvalid))
}
