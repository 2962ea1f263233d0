// Package goroutine runs fire-and-forget work (event publishing, queue
// consumers) under a global cap so a burst of logins cannot spawn unbounded
// goroutines. Work beyond the cap is dropped, not queued.
package goroutine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/shandysiswandi/twofa/internal/pkg/stacktrace"
	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxGoroutine is multiplied by NumCPU when NewManager gets no limit.
const DefaultMaxGoroutine int = 100

// Manager caps concurrent background work and collects its errors for Wait.
type Manager struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	// closed is read-locked while a task is being admitted so Wait cannot
	// start draining halfway through an admission.
	closeMu sync.RWMutex
	closed  bool

	errMu sync.Mutex
	errs  []error

	running atomic.Int64
	dropped atomic.Int64
}

func NewManager(limit int) *Manager {
	if limit < 1 {
		limit = runtime.NumCPU() * DefaultMaxGoroutine
	}
	return &Manager{sem: semaphore.NewWeighted(int64(limit))}
}

// Go runs f unless the manager is full or already waited on. f is skipped
// when ctx is done before it starts. A panic in f is logged and recorded as
// an error.
func (g *Manager) Go(ctx context.Context, f func(ctx context.Context) error) {
	if g == nil {
		return
	}

	g.closeMu.RLock()
	defer g.closeMu.RUnlock()

	switch {
	case g.closed:
		g.dropped.Inc()
		slog.WarnContext(ctx, "goroutine manager is closed, task dropped")
		return
	case !g.sem.TryAcquire(1):
		g.dropped.Inc()
		slog.WarnContext(ctx, "goroutine limit reached, task dropped")
		return
	}

	g.running.Inc()
	g.wg.Go(func() {
		defer func() {
			g.running.Dec()
			g.sem.Release(1)
		}()

		if err := ctx.Err(); err != nil {
			slog.WarnContext(ctx, "goroutine canceled before start", "error", err)
			return
		}
		if err := run(ctx, f); err != nil {
			g.errMu.Lock()
			g.errs = append(g.errs, err)
			g.errMu.Unlock()
		}
	})
}

func run(ctx context.Context, f func(context.Context) error) (err error) {
	defer func() {
		rvr := recover()
		if rvr == nil {
			return
		}
		stack := debug.Stack()
		var frames any = string(stack)
		if paths := stacktrace.InternalPaths(stack); len(paths) > 0 {
			frames = paths
		}
		slog.ErrorContext(ctx, "goroutine panicked", "panic", rvr, "stack", frames)
		err = fmt.Errorf("goroutine: panic: %v", rvr)
	}()
	return f(ctx)
}

// Wait stops admitting work, blocks until running tasks return and joins
// their errors.
func (g *Manager) Wait() error {
	if g == nil {
		return nil
	}

	g.closeMu.Lock()
	g.closed = true
	g.closeMu.Unlock()

	g.wg.Wait()

	g.errMu.Lock()
	defer g.errMu.Unlock()
	return errors.Join(g.errs...)
}

// Running reports how many admitted tasks have not returned yet.
func (g *Manager) Running() int64 {
	if g == nil {
		return 0
	}
	return g.running.Load()
}

// Dropped reports how many tasks were refused because the manager was full
// or closed.
func (g *Manager) Dropped() int64 {
	if g == nil {
		return 0
	}
	return g.dropped.Load()
}
