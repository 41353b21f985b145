package starlark

import (
	"context"
	"log/slog"
	"sync"

	"go.starlark.net/starlark"
)

// DefaultMaxSteps bounds the computation of a single script call.
const DefaultMaxSteps = 10_000_000

// ThreadPool keeps Starlark threads for reuse across row calls.
type ThreadPool struct {
	mu       sync.Mutex
	threads  []*starlark.Thread
	maxSize  int
	maxSteps uint64
	logger   *slog.Logger
}

// NewThreadPool creates a pool holding at most maxSize idle threads.
// Script print() output goes to logger at debug level.
func NewThreadPool(maxSize int, logger *slog.Logger) *ThreadPool {
	if maxSize <= 0 {
		maxSize = 10
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ThreadPool{
		threads:  make([]*starlark.Thread, 0, maxSize),
		maxSize:  maxSize,
		maxSteps: DefaultMaxSteps,
		logger:   logger,
	}
}

// Get retrieves an idle thread or creates a new one.
func (p *ThreadPool) Get(name string) *starlark.Thread {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.threads); n > 0 {
		thread := p.threads[n-1]
		p.threads = p.threads[:n-1]
		thread.Name = name
		thread.SetMaxExecutionSteps(thread.ExecutionSteps() + p.maxSteps)
		return thread
	}

	thread := &starlark.Thread{
		Name: name,
		Print: func(t *starlark.Thread, msg string) {
			p.logger.Debug("script print", "thread", t.Name, "msg", msg)
		},
	}
	thread.SetMaxExecutionSteps(p.maxSteps)
	return thread
}

// Put returns a thread to the pool. Threads beyond the pool size are dropped.
func (p *ThreadPool) Put(thread *starlark.Thread) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.threads) < p.maxSize {
		thread.Name = ""
		thread.Uncancel()
		p.threads = append(p.threads, thread)
	}
}

// Size returns the number of idle threads.
func (p *ThreadPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.threads)
}

// Call runs fn on a pooled thread. The thread is cancelled when ctx is done.
func (p *ThreadPool) Call(ctx context.Context, name string, fn starlark.Callable, args starlark.Tuple) (starlark.Value, error) {
	thread := p.Get(name)
	defer p.Put(thread)

	stop := context.AfterFunc(ctx, func() { thread.Cancel(context.Cause(ctx).Error()) })
	defer stop()

	result, err := starlark.Call(thread, fn, args, nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return result, nil
}
