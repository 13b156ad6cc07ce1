package daemon

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/sanmathigb/nrvna-ai/pkg/telemetry"
)

const (
	// MinWorkers and MaxWorkers bound the pool size.
	MinWorkers = 1
	MaxWorkers = 64
)

// ProcessFunc executes one job on behalf of a worker. workerID is stable
// for the lifetime of the pool and selects the worker's inference runner.
type ProcessFunc func(id string, workerID int)

// Pool is a fixed-size worker pool over an unbounded FIFO of job IDs,
// guarded by a single mutex and condition variable. FIFO order is a
// preference, not a correctness property: any worker may take any job,
// and duplicate submissions are tolerated because the claim rename admits
// exactly one winner.
type Pool struct {
	workers int
	logger  *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []string
	running  bool
	shutdown bool
	wg       sync.WaitGroup
}

// NewPool creates a pool with the given worker count.
func NewPool(workers int, logger *slog.Logger) (*Pool, error) {
	if workers < MinWorkers || workers > MaxWorkers {
		return nil, fmt.Errorf("workers must be between %d and %d, got %d", MinWorkers, MaxWorkers, workers)
	}
	p := &Pool{workers: workers, logger: logger}
	p.cond = sync.NewCond(&p.mu)
	return p, nil
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int { return p.workers }

// Start spawns the workers. The caller must have pre-initialized one
// inference runner per worker slot before calling Start.
func (p *Pool) Start(fn ProcessFunc) error {
	if fn == nil {
		return fmt.Errorf("nil process function")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("pool already running")
	}
	p.running = true
	p.shutdown = false

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(i, fn)
	}
	p.logger.Info("worker pool started", slog.Int("workers", p.workers))
	return nil
}

// Submit enqueues a job ID. Safe to call concurrently; a no-op once the
// pool is stopped.
func (p *Pool) Submit(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running || p.shutdown {
		p.logger.Debug("pool stopped, dropping job", slog.String("job_id", id))
		return
	}
	p.queue = append(p.queue, id)
	telemetry.PoolQueueDepth.Set(float64(len(p.queue)))
	p.cond.Signal()
}

// QueueLen returns the number of undispatched IDs.
func (p *Pool) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Stop signals shutdown, wakes all workers, and joins them. Workers finish
// their current job first; undispatched queue entries are dropped.
// Idempotent.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.shutdown = true
	p.running = false
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	dropped := len(p.queue)
	p.queue = nil
	telemetry.PoolQueueDepth.Set(0)
	p.mu.Unlock()

	if dropped > 0 {
		p.logger.Info("pool stopped, dropped queued jobs", slog.Int("dropped", dropped))
	} else {
		p.logger.Info("pool stopped")
	}
}

func (p *Pool) workerLoop(workerID int, fn ProcessFunc) {
	defer p.wg.Done()
	log := p.logger.With(slog.Int("worker_id", workerID))
	log.Debug("worker started")

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.shutdown {
			p.cond.Wait()
		}
		if p.shutdown {
			p.mu.Unlock()
			log.Debug("worker stopped")
			return
		}
		id := p.queue[0]
		p.queue = p.queue[1:]
		telemetry.PoolQueueDepth.Set(float64(len(p.queue)))
		p.mu.Unlock()

		p.runOne(id, workerID, fn, log)
	}
}

// runOne invokes fn outside the queue lock. A panic is logged and does
// not kill the worker.
func (p *Pool) runOne(id string, workerID int, fn ProcessFunc, log *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job processing panicked",
				slog.String("job_id", id),
				slog.Any("panic", r),
			)
		}
	}()
	fn(id, workerID)
}
