package wirebus

import (
	"errors"
	"fmt"
	"sync"
)

// ErrExecutorClosed is the error carried by futures returned from an
// executor that has been closed.
var ErrExecutorClosed = errors.New("executor closed")

// Task is a zero-argument unit of work produced by event dispatch.
type Task func() (any, error)

// Executor accepts tasks and returns completion handles for observing them.
// Implementations decide the scheduling model; the bus imposes none.
type Executor interface {
	Submit(task Task) *Future
}

// SyncExecutor runs each task immediately on the submitting goroutine and
// returns an already-terminal future. The zero value is ready to use.
//
// It does seem a bit silly, but it gives callers one consistent interface
// whether or not any real concurrency is involved.
type SyncExecutor struct{}

// Submit executes the task inline, capturing its result, error, or panic.
func (SyncExecutor) Submit(task Task) *Future {
	f := newFuture()
	f.begin()
	f.complete(runTask(task))
	return f
}

// PoolExecutor runs tasks on a fixed set of worker goroutines fed from a
// bounded queue. Submit blocks while the queue is full. Futures cancelled
// while still queued never execute.
type PoolExecutor struct {
	mu     sync.RWMutex
	tasks  chan poolTask
	closed bool
	wg     sync.WaitGroup
}

type poolTask struct {
	run    Task
	future *Future
}

// NewPoolExecutor starts a pool of the given number of workers over a queue
// of the given capacity. Values below one are raised to one worker and an
// unbuffered queue.
func NewPoolExecutor(workers, queue int) *PoolExecutor {
	if workers < 1 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	p := &PoolExecutor{tasks: make(chan poolTask, queue)}
	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

// Submit queues the task, blocking while the queue is full. After Close, the
// returned future is already failed with ErrExecutorClosed.
func (p *PoolExecutor) Submit(task Task) *Future {
	f := newFuture()

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		f.complete(nil, ErrExecutorClosed)
		return f
	}
	p.tasks <- poolTask{run: task, future: f}
	return f
}

// Close stops intake and waits for queued tasks to drain.
func (p *PoolExecutor) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

func (p *PoolExecutor) worker() {
	defer p.wg.Done()
	for pt := range p.tasks {
		if !pt.future.begin() {
			continue
		}
		pt.future.complete(runTask(pt.run))
	}
}

// runTask invokes the task, converting a panic into an error so one handler
// cannot take down the executor.
func runTask(task Task) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task()
}
