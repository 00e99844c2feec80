package closer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloseRunsInReverseOrder(t *testing.T) {
	c := NewCloser(0, nil)

	var (
		mu    sync.Mutex
		order []string
	)
	for _, name := range []string{"postgres", "redis", "kafka"} {
		c.Add(name, func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		})
	}

	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, []string{"kafka", "redis", "postgres"}, order)
}

func TestCloseCollectsNamedErrors(t *testing.T) {
	c := NewCloser(0, nil)
	reset := errors.New("connection reset")
	c.Add("redis", func(context.Context) error { return reset })
	c.Add("kafka", func(context.Context) error { return nil })

	err := c.Close(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, reset)

	var rerr *ResourceError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "redis", rerr.Name)
	assert.False(t, rerr.Forced)
}

func TestCloseOnlyOnce(t *testing.T) {
	c := NewCloser(0, nil)
	calls := 0
	c.Add("x", func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, c.Len())
}

func TestCloseForcesRemainingOnTimeout(t *testing.T) {
	c := NewCloser(100*time.Millisecond, nil)

	forced := make(chan struct{}, 1)
	c.Add("postgres", func(ctx context.Context) error {
		forced <- struct{}{}
		return nil
	})
	c.Add("slow", func(ctx context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Close(ctx)
	assert.ErrorIs(t, err, ErrInterrupted)

	select {
	case <-forced:
	case <-time.After(time.Second):
		t.Fatal("remaining resource was not closed")
	}
}
