package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cofrinho/internal/amqp"
	"cofrinho/internal/log"
)

func testConfig() SyncProcessorConfig {
	return SyncProcessorConfig{QueueSize: 8, MaxRetries: 3, RetryDelay: time.Millisecond}
}

func TestDefaultSyncProcessorConfig(t *testing.T) {
	config := DefaultSyncProcessorConfig()

	assert.Equal(t, 256, config.QueueSize)
	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, config.RetryDelay)
}

func TestNewSyncProcessor_FillsDefaults(t *testing.T) {
	p := NewSyncProcessor(nil, SyncProcessorConfig{RetryDelay: -1}, log.Discard())

	assert.Equal(t, 256, p.config.QueueSize)
	assert.Equal(t, 3, p.config.MaxRetries)
	assert.Equal(t, time.Duration(0), p.config.RetryDelay)
	assert.False(t, p.IsRunning(), "processor should not be running initially")
}

func TestSyncProcessor_StartTwice(t *testing.T) {
	p := NewSyncProcessor(func(context.Context, *amqp.TransactionEvent) error { return nil }, testConfig(), log.Discard())
	ctx := context.Background()

	require.NoError(t, p.Start(ctx))
	assert.True(t, p.IsRunning())
	assert.Error(t, p.Start(ctx), "second Start should fail")

	require.NoError(t, p.Stop(ctx))
	assert.False(t, p.IsRunning())
	assert.NoError(t, p.Stop(ctx), "Stop on a stopped processor is a no-op")
}

func TestSyncProcessor_AppliesEvents(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	handler := func(_ context.Context, ev *amqp.TransactionEvent) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev.ShortID)
		return nil
	}
	p := NewSyncProcessor(handler, testConfig(), log.Discard())
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	defer p.Stop(ctx)

	require.NoError(t, p.Publish(ctx, amqp.NewDeletedEvent(1, "AAAAA")))
	require.NoError(t, p.Publish(ctx, amqp.NewDeletedEvent(1, "BBBBB")))

	require.Eventually(t, func() bool { return p.Stats().Processed == 2 }, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"AAAAA", "BBBBB"}, seen)
	mu.Unlock()
}

func TestSyncProcessor_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	handler := func(context.Context, *amqp.TransactionEvent) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}
	p := NewSyncProcessor(handler, testConfig(), log.Discard())
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	defer p.Stop(ctx)

	require.NoError(t, p.Publish(ctx, amqp.NewDeletedEvent(1, "AAAAA")))

	require.Eventually(t, func() bool { return p.Stats().Processed == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int64(0), p.Stats().Failed)
}

func TestSyncProcessor_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	handler := func(context.Context, *amqp.TransactionEvent) error {
		calls.Add(1)
		return errors.New("permanent")
	}
	p := NewSyncProcessor(handler, testConfig(), log.Discard())
	ctx := context.Background()
	require.NoError(t, p.Start(ctx))
	defer p.Stop(ctx)

	require.NoError(t, p.Publish(ctx, amqp.NewDeletedEvent(1, "AAAAA")))

	require.Eventually(t, func() bool { return p.Stats().Failed == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int64(0), p.Stats().Processed)
}

func TestSyncProcessor_QueueFull(t *testing.T) {
	p := NewSyncProcessor(nil, SyncProcessorConfig{QueueSize: 1}, log.Discard())
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, amqp.NewDeletedEvent(1, "AAAAA")))
	assert.ErrorIs(t, p.Publish(ctx, amqp.NewDeletedEvent(1, "BBBBB")), ErrQueueFull)
	assert.Equal(t, 1, p.Stats().Pending)
}

func TestSyncProcessor_PublishCanceled(t *testing.T) {
	p := NewSyncProcessor(nil, testConfig(), log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Publish(ctx, amqp.NewDeletedEvent(1, "AAAAA")), context.Canceled)
}

func TestSyncProcessor_StopDrainsQueue(t *testing.T) {
	var handled atomic.Int32
	handler := func(context.Context, *amqp.TransactionEvent) error {
		handled.Add(1)
		return nil
	}
	p := NewSyncProcessor(handler, testConfig(), log.Discard())
	ctx := context.Background()

	// Queued before Start; Stop must still apply them.
	for _, id := range []string{"AAAAA", "BBBBB", "CCCCC"} {
		require.NoError(t, p.Publish(ctx, amqp.NewDeletedEvent(1, id)))
	}
	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Stop(ctx))

	assert.Equal(t, int32(3), handled.Load())
	assert.Equal(t, 0, p.Stats().Pending)
}
