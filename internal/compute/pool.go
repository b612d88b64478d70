package compute

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"powersvc/internal"
)

// ErrPoolClosed is returned when submitting to a closed pool
var ErrPoolClosed = errors.New("worker pool closed")

// Pool is a cached worker pool. Workers are started on demand, reused while
// work keeps arriving and retired after sitting idle for the idle timeout.
// With a positive cap, at most that many workers exist at once and
// submissions wait for a free or idle worker.
type Pool struct {
	idle   time.Duration
	sem    *semaphore.Weighted
	logger *internal.Logger

	tasks chan func()
	freed chan struct{}
	quit  chan struct{}

	mu     sync.Mutex
	closed bool

	live atomic.Int64
	busy atomic.Int64
	wg   sync.WaitGroup
}

// NewPool creates a pool. maxWorkers <= 0 means no cap.
func NewPool(idle time.Duration, maxWorkers int64, logger *internal.Logger) *Pool {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	p := &Pool{
		idle:   idle,
		logger: logger,
		tasks:  make(chan func()),
		freed:  make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
	if maxWorkers > 0 {
		p.sem = semaphore.NewWeighted(maxWorkers)
	}
	return p
}

// Submit hands task to an idle worker or starts a new one. It only blocks
// when the pool is capped and every worker is busy.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		return nil
	default:
	}

	if p.sem != nil {
		for !p.sem.TryAcquire(1) {
			select {
			case p.tasks <- task:
				return nil
			case <-p.freed:
			case <-p.quit:
				return ErrPoolClosed
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		if p.sem != nil {
			p.sem.Release(1)
		}
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.live.Add(1)
	go p.work(task)
	return nil
}

func (p *Pool) work(task func()) {
	defer p.retire()

	timer := time.NewTimer(p.idle)
	defer timer.Stop()
	for {
		p.run(task)
		timer.Reset(p.idle)
		select {
		case task = <-p.tasks:
		case <-timer.C:
			return
		case <-p.quit:
			return
		}
	}
}

func (p *Pool) run(task func()) {
	p.busy.Add(1)
	defer p.busy.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker recovered from panic: %v", r)
		}
	}()
	task()
}

func (p *Pool) retire() {
	p.live.Add(-1)
	if p.sem != nil {
		p.sem.Release(1)
		select {
		case p.freed <- struct{}{}:
		default:
		}
	}
	p.wg.Done()
}

// Workers is the number of live workers, busy or idle
func (p *Pool) Workers() int {
	return int(p.live.Load())
}

// Busy is the number of workers currently running a task
func (p *Pool) Busy() int {
	return int(p.busy.Load())
}

// Close retires idle workers and rejects new submissions. Busy workers exit
// once their current task returns; Close waits for them until ctx is done.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.quit)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool closed with %d workers still busy", p.Busy())
		return ctx.Err()
	}
}
