package dew

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_SpawnAndCompleteRootTask(t *testing.T) {
	s, err := NewScheduler()
	require.NoError(t, err)

	ran := false
	_, err = s.Spawn(0, func(c *Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.True(t, ran)
}

func TestScheduler_SendRecvBetweenTasks(t *testing.T) {
	s, err := NewScheduler()
	require.NoError(t, err)

	var received string
	_, err = s.Spawn(0, func(c *Context) error {
		child, err := c.Spawn(func(c *Context) error {
			m, err := c.Recv()
			if err != nil {
				return err
			}
			received = m.Body.(string)
			return nil
		})
		if err != nil {
			return err
		}
		if err := c.Send(context.Background(), child, "ping"); err != nil {
			return err
		}
		_, err := c.Await(child)
		return err
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, "ping", received)
}

func TestScheduler_SleepOrdersWithClock(t *testing.T) {
	s, err := NewScheduler()
	require.NoError(t, err)

	var order []int
	_, err = s.Spawn(0, func(c *Context) error {
		if _, err := c.Spawn(func(c *Context) error {
			c.Sleep(30 * time.Millisecond)
			order = append(order, 2)
			return nil
		}); err != nil {
			return err
		}
		if _, err := c.Spawn(func(c *Context) error {
			c.Sleep(5 * time.Millisecond)
			order = append(order, 1)
			return nil
		}); err != nil {
			return err
		}
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, []int{1, 2}, order)
}

func TestScheduler_ParentExitCancelsChildren(t *testing.T) {
	s, err := NewScheduler()
	require.NoError(t, err)

	childCanceled := make(chan struct{})
	_, err = s.Spawn(0, func(c *Context) error {
		_, err := c.Spawn(func(c *Context) error {
			<-c.Done()
			close(childCanceled)
			return c.Err()
		})
		return err // parent returns immediately, orphaning the child
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	select {
	case <-childCanceled:
	default:
		t.Fatal("child was not canceled when its parent exited")
	}
}

func TestScheduler_InboxBackpressureYieldsSender(t *testing.T) {
	s, err := NewScheduler()
	require.NoError(t, err)

	delivered := 0
	_, err = s.Spawn(0, func(c *Context) error {
		child, err := c.Spawn(func(c *Context) error {
			for i := 0; i < maxInboxCap+1; i++ {
				if _, err := c.Recv(); err != nil {
					return err
				}
				delivered++
			}
			return nil
		})
		if err != nil {
			return err
		}
		for i := 0; i < maxInboxCap+1; i++ {
			if err := c.Send(context.Background(), child, i); err != nil {
				return err
			}
		}
		// Stay alive until the child drains its inbox: a parent's exit
		// cancels its children.
		_, err = c.Await(child)
		return err
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, maxInboxCap+1, delivered)
}
