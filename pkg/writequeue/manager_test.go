package writequeue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_SerializesSameKey(t *testing.T) {
	m := New(nil, nil)
	defer m.Shutdown(context.Background())

	var (
		running atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.Execute(context.Background(), "c1", func() error {
				if running.Add(1) > 1 {
					overlap.Store(true)
				}
				time.Sleep(time.Millisecond)
				running.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.False(t, overlap.Load())
	assert.Equal(t, 1, m.QueueCount())
}

func TestManager_ReturnsFnError(t *testing.T) {
	m := New(nil, nil)
	defer m.Shutdown(context.Background())

	want := errors.New("write failed")
	assert.ErrorIs(t, m.Execute(context.Background(), "c1", func() error { return want }), want)
}

func TestManager_CancelledContext(t *testing.T) {
	m := New(nil, nil)
	defer m.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := m.Execute(ctx, "c1", func() error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestManager_ShutdownRejectsNewWrites(t *testing.T) {
	m := New(nil, nil)
	require.NoError(t, m.Execute(context.Background(), "c1", func() error { return nil }))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.True(t, m.IsClosed())
	assert.ErrorIs(t, m.Execute(context.Background(), "c1", func() error { return nil }), ErrWriteQueueClosed)
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_ReapIdle(t *testing.T) {
	m := New(&Config{IdleTimeout: time.Hour}, nil)
	defer m.Shutdown(context.Background())

	require.NoError(t, m.Execute(context.Background(), "c1", func() error { return nil }))
	require.Equal(t, 1, m.QueueCount())

	m.reapIdle(time.Now().Add(2 * time.Hour))
	assert.Equal(t, 0, m.QueueCount())

	// 回收后再次写入会重新创建队列
	require.NoError(t, m.Execute(context.Background(), "c1", func() error { return nil }))
	assert.Equal(t, 1, m.QueueCount())
}

func TestManager_StartedWriteAwaitedAfterCancel(t *testing.T) {
	m := New(nil, nil)
	defer m.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.Execute(ctx, "c1", func() error {
			close(entered)
			<-release
			finished.Store(true)
			return nil
		})
	}()

	<-entered
	cancel()
	time.Sleep(10 * time.Millisecond)
	close(release)

	// 已开始的写操作不因取消而提前返回
	require.NoError(t, <-errCh)
	assert.True(t, finished.Load())
}

func TestManager_QueuedWriteAbandonedOnCancel(t *testing.T) {
	m := New(nil, nil)
	defer m.Shutdown(context.Background())

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = m.Execute(context.Background(), "c1", func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	var called atomic.Bool
	err := m.Execute(ctx, "c1", func() error { called.Store(true); return nil })
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	require.NoError(t, m.Execute(context.Background(), "c1", func() error { return nil }))
	assert.False(t, called.Load())
}
