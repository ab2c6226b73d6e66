package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/waclaw/internal/types"
)

func testEvent(sender string) *types.InboundEvent {
	return &types.InboundEvent{
		ID:     types.NewEventID(),
		Sender: types.WaID(sender),
		Type:   types.MessageTypeText,
		Text:   "hello",
	}
}

func TestQueueAdmitsUpToThreshold(t *testing.T) {
	var processed int32
	queue := NewQueue(func(ctx context.Context, event *types.InboundEvent) Outcome {
		atomic.AddInt32(&processed, 1)
		return success("ok")
	}, 3, time.Hour, time.Millisecond)
	queue.Start(context.Background())
	defer queue.Stop()

	for i := 0; i < 3; i++ {
		out := queue.Submit(context.Background(), testEvent(fmt.Sprintf("1%d", i)))
		if out.Kind != OutcomeSuccess {
			t.Fatalf("submit %d: expected success, got %s", i, out.Kind)
		}
	}

	out := queue.Submit(context.Background(), testEvent("99"))
	if out.Kind != OutcomeDeferred {
		t.Fatalf("expected deferred outcome past threshold, got %s", out.Kind)
	}
	if atomic.LoadInt32(&processed) != 3 {
		t.Errorf("expected 3 inline runs, got %d", processed)
	}
	if queue.Depth() != 1 {
		t.Errorf("expected 1 buffered entry, got %d", queue.Depth())
	}
}

func TestQueueBurstScenario(t *testing.T) {
	// 75 events in one window with threshold 50: 50 inline, 25 buffered,
	// all drained once the next window opens.
	var processed int32
	queue := NewQueue(func(ctx context.Context, event *types.InboundEvent) Outcome {
		atomic.AddInt32(&processed, 1)
		return success("ok")
	}, 50, 200*time.Millisecond, time.Millisecond)
	queue.Start(context.Background())
	defer queue.Stop()

	var deferred int32
	var wg sync.WaitGroup
	for i := 0; i < 75; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			out := queue.Submit(context.Background(), testEvent(fmt.Sprintf("5%03d", n)))
			if out.Kind == OutcomeDeferred {
				atomic.AddInt32(&deferred, 1)
			}
		}(i)
	}
	wg.Wait()

	if d := atomic.LoadInt32(&deferred); d != 25 {
		t.Errorf("expected 25 deferred events, got %d", d)
	}
	if p := atomic.LoadInt32(&processed); p != 50 {
		t.Errorf("expected 50 inline runs, got %d", p)
	}

	if !queue.WaitIdle(2 * time.Second) {
		t.Fatal("queue never drained")
	}
	if p := atomic.LoadInt32(&processed); p != 75 {
		t.Errorf("expected all 75 events processed after drain, got %d", p)
	}
}

func TestQueueDrainIsSequentialWithPacing(t *testing.T) {
	var running int32
	var maxSeen int32
	queue := NewQueue(func(ctx context.Context, event *types.InboundEvent) Outcome {
		current := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&maxSeen)
			if current <= old || atomic.CompareAndSwapInt32(&maxSeen, old, current) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return success("ok")
	}, 0, 30*time.Millisecond, 5*time.Millisecond)
	queue.Start(context.Background())
	defer queue.Stop()

	// Threshold 0: everything goes to the buffer.
	for i := 0; i < 5; i++ {
		queue.Submit(context.Background(), testEvent(fmt.Sprintf("2%d", i)))
	}

	if !queue.WaitIdle(2 * time.Second) {
		t.Fatal("queue never drained")
	}
	if m := atomic.LoadInt32(&maxSeen); m > 1 {
		t.Errorf("drain ran entries concurrently: max %d in flight", m)
	}
}

func TestQueueDrainsDoNotOverlap(t *testing.T) {
	// A processor slower than the window forces window ticks mid-drain.
	var running int32
	var maxSeen int32
	queue := NewQueue(func(ctx context.Context, event *types.InboundEvent) Outcome {
		current := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&maxSeen)
			if current <= old || atomic.CompareAndSwapInt32(&maxSeen, old, current) {
				break
			}
		}
		time.Sleep(40 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return success("ok")
	}, 0, 15*time.Millisecond, time.Millisecond)
	queue.Start(context.Background())
	defer queue.Stop()

	for i := 0; i < 4; i++ {
		queue.Submit(context.Background(), testEvent(fmt.Sprintf("3%d", i)))
	}

	if !queue.WaitIdle(3 * time.Second) {
		t.Fatal("queue never drained")
	}
	if m := atomic.LoadInt32(&maxSeen); m > 1 {
		t.Errorf("overlapping drains: max %d in flight", m)
	}
}

func TestQueueDrainSurvivesEntryFailure(t *testing.T) {
	var processed int32
	queue := NewQueue(func(ctx context.Context, event *types.InboundEvent) Outcome {
		n := atomic.AddInt32(&processed, 1)
		if n == 1 {
			return failed(errors.New("boom"))
		}
		return success("ok")
	}, 0, 20*time.Millisecond, time.Millisecond)
	queue.Start(context.Background())
	defer queue.Stop()

	for i := 0; i < 3; i++ {
		queue.Submit(context.Background(), testEvent(fmt.Sprintf("4%d", i)))
	}

	if !queue.WaitIdle(2 * time.Second) {
		t.Fatal("queue never drained")
	}
	if p := atomic.LoadInt32(&processed); p != 3 {
		t.Errorf("expected all 3 entries attempted despite failure, got %d", p)
	}
}

func TestQueueWindowResetRestoresCapacity(t *testing.T) {
	var processed int32
	queue := NewQueue(func(ctx context.Context, event *types.InboundEvent) Outcome {
		atomic.AddInt32(&processed, 1)
		return success("ok")
	}, 1, 25*time.Millisecond, time.Millisecond)
	queue.Start(context.Background())
	defer queue.Stop()

	if out := queue.Submit(context.Background(), testEvent("60")); out.Kind != OutcomeSuccess {
		t.Fatalf("expected first event admitted, got %s", out.Kind)
	}
	if out := queue.Submit(context.Background(), testEvent("61")); out.Kind != OutcomeDeferred {
		t.Fatalf("expected second event deferred, got %s", out.Kind)
	}

	// Wait for the next window to reset the counter.
	time.Sleep(60 * time.Millisecond)

	if out := queue.Submit(context.Background(), testEvent("62")); out.Kind != OutcomeSuccess {
		t.Fatalf("expected admission after window reset, got %s", out.Kind)
	}
}
