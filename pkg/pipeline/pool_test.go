package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/object-scanner/pkg/types"
)

type funcProcessor func(ctx context.Context, data []byte) (*types.DetectionResult, error)

func (f funcProcessor) Process(ctx context.Context, data []byte) (*types.DetectionResult, error) {
	return f(ctx, data)
}

func echoProcessor() funcProcessor {
	return func(ctx context.Context, data []byte) (*types.DetectionResult, error) {
		return &types.DetectionResult{Found: true, Label: string(data), Color: "Red"}, nil
	}
}

func TestPoolSubmit(t *testing.T) {
	pool := NewPool(echoProcessor(), 4, 8, nil)
	defer pool.Close()

	var wg sync.WaitGroup
	labels := []string{"cup", "bag", "phone", "keys", "book", "hat", "pen", "mug"}
	results := make([]string, len(labels))
	for i, l := range labels {
		wg.Add(1)
		go func(i int, l string) {
			defer wg.Done()
			res, err := pool.Submit(context.Background(), []byte(l))
			if assert.NoError(t, err) {
				results[i] = res.Label
			}
		}(i, l)
	}
	wg.Wait()
	assert.Equal(t, labels, results)
}

func TestPoolPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	pool := NewPool(funcProcessor(func(ctx context.Context, data []byte) (*types.DetectionResult, error) {
		return nil, boom
	}), 1, 1, nil)
	defer pool.Close()

	_, err := pool.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
}

func TestPoolRecoversFromPanic(t *testing.T) {
	var calls atomic.Int32
	pool := NewPool(funcProcessor(func(ctx context.Context, data []byte) (*types.DetectionResult, error) {
		if calls.Add(1) == 1 {
			panic("corrupt tensor")
		}
		return types.NotFound(), nil
	}), 1, 1, nil)
	defer pool.Close()

	_, err := pool.Submit(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt tensor")

	// The worker keeps serving after a panic.
	res, err := pool.Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestPoolSubmitHonoursContext(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(funcProcessor(func(ctx context.Context, data []byte) (*types.DetectionResult, error) {
		<-release
		return types.NotFound(), nil
	}), 1, 0, nil)
	defer pool.Close()
	defer close(release)

	go func() { _, _ = pool.Submit(context.Background(), nil) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := pool.Submit(ctx, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPoolSkipsCancelledJobs(t *testing.T) {
	var calls atomic.Int32
	pool := NewPool(funcProcessor(func(ctx context.Context, data []byte) (*types.DetectionResult, error) {
		calls.Add(1)
		return types.NotFound(), nil
	}), 1, 1, nil)
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pool.Submit(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestPoolClosed(t *testing.T) {
	pool := NewPool(echoProcessor(), 2, 2, nil)
	pool.Close()
	pool.Close()

	_, err := pool.Submit(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.Equal(t, 0, pool.QueueDepth())
}

func TestPoolWithPipeline(t *testing.T) {
	det := &stubDetector{cands: []types.Candidate{cand("bottle", 0, 0, 64, 64)}}
	pool := NewPool(New(det), 2, 4, nil)
	defer pool.Close()

	_, err := pool.Submit(context.Background(), []byte("garbage"))
	assert.Error(t, err)
}
