// Package workers runs best-effort background tasks on a fixed set of
// goroutines fed by a bounded queue.
package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/gobeaver/beaver-auth2/config"
)

// Config sizes the pool.
type Config struct {
	Workers     int           `env:"WORKERS_COUNT" envDefault:"4"`
	QueueSize   int           `env:"WORKERS_QUEUE_SIZE" envDefault:"256"`
	TaskTimeout time.Duration `env:"WORKERS_TASK_TIMEOUT" envDefault:"30s"`
}

// GetConfig loads configuration from environment variables
func GetConfig(opts ...config.LoadOptions) (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg, opts...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Task is a unit of background work. It should honor ctx cancellation.
type Task func(ctx context.Context) error

type job struct {
	name string
	fn   Task
}

// Stats are cumulative counters since Start.
type Stats struct {
	Submitted int64
	Dropped   int64
	Completed int64
	Failed    int64
}

// Pool executes tasks asynchronously. Submission never blocks: when the
// queue is full or the pool is stopped the task is dropped and logged.
type Pool struct {
	cfg   Config
	log   *zap.Logger
	queue chan job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool

	submitted atomic.Int64
	dropped   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// New creates a pool. Call Start before submitting.
func New(cfg Config, logger *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		cfg:    cfg,
		log:    logger.Named("workers"),
		queue:  make(chan job, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker goroutines. Calling it twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	p.log.Info("worker pool started",
		zap.Int("workers", p.cfg.Workers),
		zap.Int("queue_size", p.cfg.QueueSize),
		zap.Duration("task_timeout", p.cfg.TaskTimeout))
}

// TrySubmit enqueues fn without blocking and reports whether it was accepted.
func (p *Pool) TrySubmit(name string, fn Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.started || p.stopped {
		p.dropped.Add(1)
		p.log.Warn("task dropped, pool not running", zap.String("task", name))
		return false
	}

	select {
	case p.queue <- job{name: name, fn: fn}:
		p.submitted.Add(1)
		return true
	default:
		p.dropped.Add(1)
		p.log.Warn("task dropped, queue full", zap.String("task", name), zap.Int("queue_size", p.cfg.QueueSize))
		return false
	}
}

// Stop stops accepting tasks, lets queued tasks drain and waits for the
// workers until ctx is done. Running tasks see their context cancelled
// once ctx expires.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	wasStarted := p.started
	close(p.queue)
	p.mu.Unlock()

	if !wasStarted {
		p.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.log.Info("worker pool stopped", zap.Int64("completed", p.completed.Load()), zap.Int64("failed", p.failed.Load()))
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

// Stats returns a snapshot of the counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Dropped:   p.dropped.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) run() {
	defer p.wg.Done()
	for j := range p.queue {
		p.execute(j)
	}
}

func (p *Pool) execute(j job) {
	ctx := p.ctx
	if p.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.TaskTimeout)
		defer cancel()
	}

	start := time.Now()
	err := safeCall(ctx, j.fn)
	if err != nil {
		p.failed.Add(1)
		p.log.Warn("task failed",
			zap.String("task", j.name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return
	}
	p.completed.Add(1)
	p.log.Debug("task completed", zap.String("task", j.name), zap.Duration("elapsed", time.Since(start)))
}

func safeCall(ctx context.Context, fn Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx)
}
