package workerpool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerRunsImmediatelyThenOnInterval(t *testing.T) {
	var calls int32
	s := NewScheduler(testLogger())
	s.Register(Task{
		Name:           "tick",
		Interval:       5 * time.Millisecond,
		RunImmediately: true,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 22*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(3))
}

func TestSchedulerRecoversFromPanic(t *testing.T) {
	var ran int32
	s := NewScheduler(testLogger())
	s.Register(Task{
		Name:           "flaky",
		Interval:       2 * time.Millisecond,
		RunImmediately: true,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			panic("boom")
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.NotPanics(t, func() { s.Run(ctx) })
	assert.GreaterOrEqual(t, atomic.LoadInt32(&ran), int32(1))
}

func TestBatchRunnerPollOnceProcessesAllItems(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	var processed int32
	b := &BatchRunner[int]{
		Fetch: func(ctx context.Context, batchSize int) ([]int, error) {
			return items, nil
		},
		Process: func(ctx context.Context, item int) error {
			atomic.AddInt32(&processed, 1)
			return nil
		},
		BatchSize:   10,
		Concurrency: 3,
		ItemTimeout: 50 * time.Millisecond,
		Logger:      testLogger(),
	}

	n, err := b.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(items), n)
	assert.EqualValues(t, len(items), atomic.LoadInt32(&processed))
}

func TestBatchRunnerPollOnceEmptyBatch(t *testing.T) {
	b := &BatchRunner[int]{
		Fetch: func(ctx context.Context, batchSize int) ([]int, error) {
			return nil, nil
		},
		Process:     func(ctx context.Context, item int) error { return nil },
		BatchSize:   10,
		ItemTimeout: time.Second,
		Logger:      testLogger(),
	}

	n, err := b.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestBatchRunnerPollOnceFetchError(t *testing.T) {
	b := &BatchRunner[int]{
		Fetch: func(ctx context.Context, batchSize int) ([]int, error) {
			return nil, errors.New("db unavailable")
		},
		Process:     func(ctx context.Context, item int) error { return nil },
		BatchSize:   10,
		ItemTimeout: time.Second,
		Logger:      testLogger(),
	}

	_, err := b.PollOnce(context.Background())
	assert.Error(t, err)
}

func TestBatchRunnerItemTimeoutDoesNotBlockOthers(t *testing.T) {
	var fastDone, slowAttempted int32
	b := &BatchRunner[string]{
		Fetch: func(ctx context.Context, batchSize int) ([]string, error) {
			return []string{"slow", "fast"}, nil
		},
		Process: func(ctx context.Context, item string) error {
			if item == "slow" {
				atomic.AddInt32(&slowAttempted, 1)
				<-ctx.Done()
				return ctx.Err()
			}
			atomic.AddInt32(&fastDone, 1)
			return nil
		},
		BatchSize:   10,
		Concurrency: 2,
		ItemTimeout: 5 * time.Millisecond,
		Logger:      testLogger(),
	}

	n, err := b.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.EqualValues(t, 1, atomic.LoadInt32(&slowAttempted))
	assert.EqualValues(t, 1, atomic.LoadInt32(&fastDone))
}

func TestBackoffDoubles(t *testing.T) {
	base := 5 * time.Minute
	assert.Equal(t, 5*time.Minute, Backoff(0, base))
	assert.Equal(t, 10*time.Minute, Backoff(1, base))
	assert.Equal(t, 20*time.Minute, Backoff(2, base))
	assert.Equal(t, 5*time.Minute, Backoff(-1, base))
}
