// Package worker runs the generate-and-reply tasks of received messages.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/isometry/lark-ai-bridge/internal/apierror"
	"github.com/isometry/lark-ai-bridge/internal/helpers"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// ErrClosed is returned by Submit once the Pool is shutting down.
var ErrClosed = errors.New("worker pool is closed")

// Task is a unit of work submitted to a Dispatcher.
type Task func(ctx context.Context) error

// Dispatcher executes tasks.
type Dispatcher interface {
	// Submit hands task over for execution. The returned error only reports the task outcome for synchronous dispatchers.
	Submit(ctx context.Context, name string, task Task) error
}

type job struct {
	ctx  context.Context
	name string
	task Task
}

// Pool executes tasks on a fixed number of goroutines. The queue is unbounded: Submit never blocks.
type Pool struct {
	logger *slog.Logger

	workers     int
	taskTimeout time.Duration
	warnBacklog int
	backlog     *rate.Sometimes

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []job
	closed bool
	wg     sync.WaitGroup
}

// Option defines a function type used to configure an instance of the Pool struct.
type Option func(*Pool)

// NewPool starts a Pool of n workers.
func NewPool(n int, opts ...Option) *Pool {
	_inst := &Pool{
		workers:     max(n, 1),
		warnBacklog: 100,
		backlog:     helpers.OnceAMinute(),
	}
	for _, opt := range opts {
		opt(_inst)
	}
	if _inst.logger == nil {
		_inst.logger = helpers.NewNoopLogger()
	}
	_inst.logger = _inst.logger.With("component", "worker-pool")
	_inst.cond = sync.NewCond(&_inst.mu)

	for i := range _inst.workers {
		_inst.wg.Add(1)
		go _inst.work(i)
	}
	_inst.logger.Debug("worker pool started", slog.Int("workers", _inst.workers))
	return _inst
}

// Submit implements Dispatcher. The task runs with a context detached from the cancellation of ctx.
func (p *Pool) Submit(ctx context.Context, name string, task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.queue = append(p.queue, job{ctx: context.WithoutCancel(ctx), name: name, task: task})
	if pending := len(p.queue); p.warnBacklog > 0 && pending >= p.warnBacklog {
		p.backlog.Do(func() {
			p.logger.Warn("worker pool backlog is growing", slog.Int("pending", pending), slog.Int("workers", p.workers))
		})
	}
	p.cond.Signal()
	return nil
}

// Pending returns the number of queued tasks not yet picked up by a worker.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Shutdown stops accepting tasks and waits for the queued ones to complete, or for ctx to be done.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	pending := len(p.queue)
	p.cond.Broadcast()
	p.mu.Unlock()
	p.logger.Info("draining worker pool...", slog.Int("pending", pending))

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "worker pool did not drain")
	}
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		j := p.queue[0]
		p.queue[0] = job{}
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.run(id, j)
	}
}

func (p *Pool) run(id int, j job) {
	logger := p.logger.With(slog.Int("worker", id), slog.String("task", j.name))
	ctx := j.ctx
	if p.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.taskTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task panicked", slog.String("panic", fmt.Sprint(r)))
		}
	}()

	start := time.Now()
	if err := j.task(ctx); err != nil {
		logger.Error("task failed",
			slog.Int("statusCode", apierror.StatusCode(err)),
			slog.Any("error", err),
			slog.Duration("elapsed", time.Since(start)))
		return
	}
	logger.Debug("task completed", slog.Duration("elapsed", time.Since(start)))
}

// Inline runs tasks on the calling goroutine and returns their error.
type Inline struct{}

// Submit implements Dispatcher.
func (Inline) Submit(ctx context.Context, _ string, task Task) error {
	return task(ctx)
}
