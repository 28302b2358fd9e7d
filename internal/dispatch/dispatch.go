// Package dispatch runs after-hooks on a background executor, strictly after
// the transaction that scheduled them has committed. Tasks carry no delivery
// or ordering guarantee; a failed task is counted and logged, never retried
// and never surfaced to the original caller.
package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"terrane/internal/platform/metrics"
)

// Task is one scheduled after-hook invocation.
type Task struct {
	Name string // entity + operation, for logs
	Run  func(ctx context.Context) error
}

// Dispatcher owns a fixed pool of workers fed by a channel.
type Dispatcher struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	inbox   chan Task
	pending sync.WaitGroup
	workers sync.WaitGroup
	stop    chan struct{}
	once    sync.Once

	// mu orders enqueues against Close: a task either reaches the inbox
	// before the stop signal (and is drained by the workers) or sees the
	// closed flag and runs inline. Without it a send racing shutdown could
	// land in the buffer after the workers exited and never run.
	mu     sync.RWMutex
	closed bool
}

// New starts a dispatcher with the given number of workers.
func New(log *slog.Logger, m *metrics.Metrics, workers, queueSize int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 64
	}
	d := &Dispatcher{
		log:     log,
		metrics: m,
		inbox:   make(chan Task, queueSize),
		stop:    make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		d.workers.Add(1)
		go d.worker()
	}
	return d
}

// Dispatch queues a task. When the dispatcher is already closed the task
// runs inline; durable work must not be dropped on shutdown.
func (d *Dispatcher) Dispatch(task Task) {
	d.pending.Add(1)
	if d.metrics != nil {
		d.metrics.AfterHookQueue.Inc()
	}
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		d.execute(task)
		return
	}
	d.inbox <- task
	d.mu.RUnlock()
}

func (d *Dispatcher) worker() {
	defer d.workers.Done()
	for {
		select {
		case task := <-d.inbox:
			d.execute(task)
		case <-d.stop:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case task := <-d.inbox:
					d.execute(task)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) execute(task Task) {
	defer d.pending.Done()
	defer func() {
		if d.metrics != nil {
			d.metrics.AfterHookQueue.Dec()
		}
		if r := recover(); r != nil {
			if d.metrics != nil {
				d.metrics.AfterHookFailures.Inc()
			}
			d.log.Error("after-hook panic", "task", task.Name, "panic", r)
		}
	}()
	if err := task.Run(context.Background()); err != nil {
		if d.metrics != nil {
			d.metrics.AfterHookFailures.Inc()
		}
		d.log.Error("after-hook failed", "task", task.Name, "error", err)
	}
}

// Wait blocks until every dispatched task has finished. Tests use it to
// observe after-hook effects deterministically.
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}

// Close stops the workers after draining queued tasks.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.stop)
	})
	d.workers.Wait()
}
