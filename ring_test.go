package dew

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_SendRecvSingleThreaded(t *testing.T) {
	r := NewRing[int](4)
	ctx := context.Background()
	require.NoError(t, r.Send(ctx, 1))
	require.NoError(t, r.Send(ctx, 2))

	v, err := r.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = r.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestRing_TrySendFullFails(t *testing.T) {
	r := NewRing[int](2)
	assert.True(t, r.TrySend(1))
	assert.True(t, r.TrySend(2))
	assert.False(t, r.TrySend(3))
}

func TestRing_MPMCStress(t *testing.T) {
	const (
		producers = 8
		consumers = 8
		perProducer = 200
	)
	r := NewRing[int](16)
	ctx := context.Background()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				require.NoError(t, r.Send(ctx, base*perProducer+i))
			}
		}(p)
	}

	var mu sync.Mutex
	seen := make(map[int]bool)
	var cwg sync.WaitGroup
	for c := 0; c < consumers; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for {
				cctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
				v, err := r.Recv(cctx)
				cancel()
				if err != nil {
					return
				}
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	cwg.Wait()

	assert.Equal(t, producers*perProducer, len(seen))
}

func TestRing_CloseUnblocksWaiters(t *testing.T) {
	r := NewRing[int](2)
	done := make(chan error, 1)
	go func() {
		_, err := r.Recv(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	r.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrRingClosed)
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock after Close")
	}
}
