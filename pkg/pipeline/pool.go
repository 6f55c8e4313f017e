package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/menta2k/object-scanner/pkg/types"
)

// ErrPoolClosed is returned by Submit after Close
var ErrPoolClosed = errors.New("worker pool closed")

type job struct {
	ctx    context.Context
	data   []byte
	result chan jobResult
}

type jobResult struct {
	res *types.DetectionResult
	err error
}

// Processor is the unit of work run by pool workers
type Processor interface {
	Process(ctx context.Context, data []byte) (*types.DetectionResult, error)
}

// Pool runs frames on a fixed number of workers fed by a bounded queue, so
// request handlers never run inference themselves.
type Pool struct {
	processor Processor
	jobs      chan job
	quit      chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	logger    *zap.Logger
}

// NewPool starts workers goroutines. queueSize bounds the number of frames
// waiting for a worker.
func NewPool(p Processor, workers, queueSize int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool := &Pool{
		processor: p,
		jobs:      make(chan job, queueSize),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger,
	}
	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.runWorker(i)
	}
	logger.Info("worker pool started", zap.Int("workers", workers), zap.Int("queue_size", queueSize))
	return pool
}

func (p *Pool) runWorker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case j := <-p.jobs:
			p.run(id, j)
		}
	}
}

func (p *Pool) run(id int, j job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker panic", zap.Int("worker", id), zap.Any("panic", r))
			j.result <- jobResult{err: fmt.Errorf("worker %d panic: %v", id, r)}
		}
	}()

	if err := j.ctx.Err(); err != nil {
		j.result <- jobResult{err: err}
		return
	}
	res, err := p.processor.Process(j.ctx, j.data)
	j.result <- jobResult{res: res, err: err}
}

// Submit queues data and waits for its result. It blocks while the queue is
// full and returns early when ctx is done or the pool is closed.
func (p *Pool) Submit(ctx context.Context, data []byte) (*types.DetectionResult, error) {
	select {
	case <-p.quit:
		return nil, ErrPoolClosed
	default:
	}

	j := job{ctx: ctx, data: data, result: make(chan jobResult, 1)}
	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.quit:
		return nil, ErrPoolClosed
	}

	select {
	case r := <-j.result:
		return r.res, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		select {
		case r := <-j.result:
			return r.res, r.err
		default:
			return nil, ErrPoolClosed
		}
	}
}

// QueueDepth returns the number of frames waiting for a worker
func (p *Pool) QueueDepth() int {
	return len(p.jobs)
}

// Close stops the workers after their current frame and fails queued frames
// with ErrPoolClosed.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)
		p.wg.Wait()
		for {
			select {
			case j := <-p.jobs:
				j.result <- jobResult{err: ErrPoolClosed}
			default:
				close(p.done)
				p.logger.Info("worker pool stopped")
				return
			}
		}
	})
}
