// internal/workers/collection/backfill-collection/runner.go
package backfillcollection

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"cinerank-workers/internal/common/logger"
)

type sliceRunner interface {
	RunSlice(ctx context.Context, input *Input) (*Output, error)
}

// Runner drains the pending backlog one slice at a time on a single background loop.
// Triggers arriving while the loop is busy are absorbed by it.
type Runner struct {
	slices  sliceRunner
	timeout time.Duration
	logger  logger.Logger

	wake   chan struct{}
	busy   atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func NewRunner(h *Handler, log logger.Logger) *Runner {
	return newRunner(h, h.config.ContinuationTimeout, log)
}

func newRunner(slices sliceRunner, timeout time.Duration, log logger.Logger) *Runner {
	return &Runner{
		slices:  slices,
		timeout: timeout,
		logger:  log.WithFields(map[string]interface{}{"component": "backfill-runner"}),
		wake:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the loop. It runs until ctx is cancelled or Stop is called.
func (r *Runner) Start(ctx context.Context) {
	r.once.Do(func() {
		ctx, r.cancel = context.WithCancel(ctx)
		go r.loop(ctx)
	})
}

// Stop cancels the loop and waits for the in-flight slice to return.
func (r *Runner) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

// Trigger asks the loop to continue the backlog. The loop does not inherit ctx;
// Trigger never waits for slice results and gives up after the continuation timeout.
func (r *Runner) Trigger(ctx context.Context) bool {
	if r.busy.Load() {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	select {
	case r.wake <- struct{}{}:
		return true
	case <-ctx.Done():
		r.logger.Warn("continuation trigger timed out", map[string]interface{}{
			"timeoutMs": r.timeout.Milliseconds(),
		})
		return false
	}
}

// Busy reports whether a continuation is running.
func (r *Runner) Busy() bool {
	return r.busy.Load()
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
			r.busy.Store(true)
			r.drain(ctx)
			r.busy.Store(false)
		}
	}
}

func (r *Runner) drain(ctx context.Context) {
	for slice := 1; ctx.Err() == nil; slice++ {
		out, err := r.slices.RunSlice(ctx, nil)
		if err != nil {
			r.logger.Error("continuation slice failed", map[string]interface{}{
				"slice": slice,
				"error": err.Error(),
			})
			return
		}
		if !out.HasMore {
			r.logger.Info("backlog drained", map[string]interface{}{"slices": slice})
			return
		}
		if out.Enriched+out.Unavailable == 0 {
			r.logger.Warn("continuation made no progress", map[string]interface{}{
				"slice":     slice,
				"remaining": out.Remaining,
			})
			return
		}
	}
}
