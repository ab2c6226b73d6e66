package admission

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/waclaw/internal/types"
)

// Processor runs the per-message pipeline for one admitted event.
type Processor func(ctx context.Context, event *types.InboundEvent) Outcome

// Queue is a leaky-bucket admission throttle. Up to threshold events per
// window are processed inline; overflow is buffered FIFO and drained when
// the next window opens, paced so a burst never floods the collaborators.
// Nothing is dropped.
type Queue struct {
	processor Processor
	threshold int
	window    time.Duration
	pacing    time.Duration

	mu       sync.Mutex
	admitted int
	buffer   []*types.InboundEvent
	draining bool

	inflight atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue creates a Queue admitting up to threshold events per window, with
// the given pacing delay between drained entries.
func NewQueue(processor Processor, threshold int, window, pacing time.Duration) *Queue {
	return &Queue{
		processor: processor,
		threshold: threshold,
		window:    window,
		pacing:    pacing,
	}
}

// Start launches the window-reset loop. Must be called before Submit.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(1)
	go q.windowLoop()
}

// Stop cancels the queue context and waits for the window loop and any
// active drain to finish. Buffered entries are abandoned.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

// Submit admits the event inline if the current window has capacity and
// returns the pipeline's outcome; otherwise it buffers the event and returns
// a deferred outcome immediately.
func (q *Queue) Submit(ctx context.Context, event *types.InboundEvent) Outcome {
	q.mu.Lock()
	q.admitted++
	if q.admitted > q.threshold {
		q.buffer = append(q.buffer, event)
		depth := len(q.buffer)
		q.mu.Unlock()
		slog.Info("event deferred", "wa_id", event.Sender, "buffer_depth", depth)
		return Outcome{Kind: OutcomeDeferred}
	}
	q.mu.Unlock()

	q.inflight.Add(1)
	defer q.inflight.Add(-1)
	return q.processor(ctx, event)
}

// Depth returns the number of buffered entries awaiting a drain.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buffer)
}

func (q *Queue) windowLoop() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			q.openWindow()
		case <-q.ctx.Done():
			return
		}
	}
}

// openWindow resets the admission counter and, if overflow is waiting and no
// drain is active, starts one. A window firing mid-drain only resets the
// counter.
func (q *Queue) openWindow() {
	q.mu.Lock()
	q.admitted = 0
	if len(q.buffer) == 0 || q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	q.mu.Unlock()

	q.wg.Add(1)
	go q.drain()
}

// drain pops buffered entries FIFO and runs each through the pipeline
// sequentially with the pacing delay between entries. A failed entry is
// logged and the drain moves on.
func (q *Queue) drain() {
	defer q.wg.Done()
	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	for {
		select {
		case <-q.ctx.Done():
			return
		default:
		}

		q.mu.Lock()
		if len(q.buffer) == 0 {
			q.mu.Unlock()
			return
		}
		event := q.buffer[0]
		q.buffer = q.buffer[1:]
		q.mu.Unlock()

		q.inflight.Add(1)
		outcome := q.processor(q.ctx, event)
		q.inflight.Add(-1)
		if outcome.Err != nil {
			slog.Error("deferred event failed", "wa_id", event.Sender, "error", outcome.Err)
		}

		select {
		case <-time.After(q.pacing):
		case <-q.ctx.Done():
			return
		}
	}
}

// WaitIdle blocks until no events are in flight and the buffer is empty, or
// the timeout expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		q.mu.Lock()
		idle := q.inflight.Load() == 0 && len(q.buffer) == 0 && !q.draining
		q.mu.Unlock()
		if idle {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}
