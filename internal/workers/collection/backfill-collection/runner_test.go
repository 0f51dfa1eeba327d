package backfillcollection

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"cinerank-workers/internal/common/logger"

	"github.com/stretchr/testify/assert"
)

type scriptedSlices struct {
	calls   int32
	hasMore int32
	fail    bool
	stall   bool
	block   chan struct{}
}

func (s *scriptedSlices) RunSlice(ctx context.Context, _ *Input) (*Output, error) {
	n := atomic.AddInt32(&s.calls, 1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.fail {
		return nil, errors.New("db down")
	}
	if s.stall {
		return &Output{HasMore: true, Failed: 5, Remaining: 5}, nil
	}
	more := n < atomic.LoadInt32(&s.hasMore)
	return &Output{HasMore: more, Enriched: 5}, nil
}

func TestRunner_DrainsUntilNoMore(t *testing.T) {
	slices := &scriptedSlices{hasMore: 4}
	r := newRunner(slices, time.Second, logger.NewTestLogger(t))
	r.Start(context.Background())
	defer r.Stop()

	assert.True(t, r.Trigger(context.Background()))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&slices.calls) == 4 && !r.Busy()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRunner_TriggerWhileBusyIsAbsorbed(t *testing.T) {
	slices := &scriptedSlices{hasMore: 1, block: make(chan struct{})}
	r := newRunner(slices, time.Second, logger.NewTestLogger(t))
	r.Start(context.Background())
	defer r.Stop()

	assert.True(t, r.Trigger(context.Background()))
	assert.Eventually(t, r.Busy, time.Second, time.Millisecond)

	start := time.Now()
	assert.True(t, r.Trigger(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(slices.block)
	assert.Eventually(t, func() bool { return !r.Busy() }, time.Second, time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&slices.calls))
}

func TestRunner_TriggerTimesOutWhenNotStarted(t *testing.T) {
	r := newRunner(&scriptedSlices{}, 20*time.Millisecond, logger.NewTestLogger(t))

	start := time.Now()
	ok := r.Trigger(context.Background())

	assert.False(t, ok)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRunner_StopsOnErrorAndNoProgress(t *testing.T) {
	for name, slices := range map[string]*scriptedSlices{
		"error":       {fail: true},
		"no progress": {stall: true},
	} {
		t.Run(name, func(t *testing.T) {
			r := newRunner(slices, time.Second, logger.NewTestLogger(t))
			r.Start(context.Background())
			defer r.Stop()

			assert.True(t, r.Trigger(context.Background()))
			assert.Eventually(t, func() bool {
				return atomic.LoadInt32(&slices.calls) == 1 && !r.Busy()
			}, time.Second, time.Millisecond)
		})
	}
}

func TestRunner_StopCancelsInFlightSlice(t *testing.T) {
	slices := &scriptedSlices{hasMore: 100, block: make(chan struct{})}
	r := newRunner(slices, time.Second, logger.NewTestLogger(t))
	r.Start(context.Background())

	assert.True(t, r.Trigger(context.Background()))
	assert.Eventually(t, r.Busy, time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
