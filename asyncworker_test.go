package dew

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncPool_SubmitReturnsResult(t *testing.T) {
	s, err := NewScheduler()
	require.NoError(t, err)
	pool := NewAsyncPool(s, 2, 10*time.Millisecond)

	var got any
	_, err = s.Spawn(0, func(c *Context) error {
		v, err := pool.Submit(c, func() (any, error) {
			return 21 * 2, nil
		})
		if err != nil {
			return err
		}
		got = v
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, 42, got)
}

func TestAsyncPool_SubmitPropagatesError(t *testing.T) {
	s, err := NewScheduler()
	require.NoError(t, err)
	pool := NewAsyncPool(s, 2, 10*time.Millisecond)

	wantErr := errors.New("boom")
	var gotErr error
	_, err = s.Spawn(0, func(c *Context) error {
		_, err := pool.Submit(c, func() (any, error) {
			return nil, wantErr
		})
		gotErr = err
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, wantErr, gotErr)
}
