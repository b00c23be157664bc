// internal/engine/queue_test.go
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rainbowcity/dialogue/internal/router"
	"github.com/rainbowcity/dialogue/internal/types"
)

func TestQueueConcurrency(t *testing.T) {
	queue := NewQueue(2, nil)
	queue.Start(context.Background())
	defer queue.Stop()

	var running int32
	var maxSeen int32

	queue.SetProcessor(func(_ context.Context, _ *types.Inbound) (*router.Outcome, error) {
		current := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&maxSeen)
			if current <= old || atomic.CompareAndSwapInt32(&maxSeen, old, current) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return &router.Outcome{}, nil
	})

	for i := 0; i < 5; i++ {
		task := &Task{Inbound: &types.Inbound{
			DialogueID: types.DialogueID(fmt.Sprintf("dialogue-%d", i)),
			Content:    "hi",
		}}
		if err := queue.Enqueue(task); err != nil {
			t.Fatal(err)
		}
	}

	time.Sleep(500 * time.Millisecond)

	if m := atomic.LoadInt32(&maxSeen); m > 2 {
		t.Errorf("expected max 2 concurrent, saw %d", m)
	}
}

func TestQueueSameDialogueOrdering(t *testing.T) {
	queue := NewQueue(4, nil)
	queue.Start(context.Background())
	defer queue.Stop()

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})

	queue.SetProcessor(func(_ context.Context, in *types.Inbound) (*router.Outcome, error) {
		mu.Lock()
		order = append(order, in.Content)
		n := len(order)
		mu.Unlock()
		if n == 3 {
			close(done)
		}
		return &router.Outcome{}, nil
	})

	id := types.DialogueID("same-dialogue")
	for i := 0; i < 3; i++ {
		task := &Task{Inbound: &types.Inbound{
			DialogueID: id,
			Content:    fmt.Sprintf("msg-%d", i),
		}}
		if err := queue.Enqueue(task); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tasks to process")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if want := fmt.Sprintf("msg-%d", i); v != want {
			t.Errorf("expected order[%d] = %s, got %s", i, want, v)
		}
	}
}

func TestQueueOnDoneReceivesOutcome(t *testing.T) {
	queue := NewQueue(1, nil)
	queue.Start(context.Background())
	defer queue.Stop()

	queue.SetProcessor(func(_ context.Context, _ *types.Inbound) (*router.Outcome, error) {
		return &router.Outcome{Relayed: []string{"bob"}}, nil
	})

	got := make(chan *router.Outcome, 1)
	task := &Task{
		Inbound: &types.Inbound{DialogueID: "d1", Content: "hi"},
		OnDone: func(out *router.Outcome, err error) {
			if err != nil {
				t.Errorf("unexpected error %v", err)
			}
			got <- out
		},
	}
	if err := queue.Enqueue(task); err != nil {
		t.Fatal(err)
	}

	select {
	case out := <-got:
		if len(out.Relayed) != 1 || out.Relayed[0] != "bob" {
			t.Errorf("unexpected outcome %+v", out)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnDone")
	}
}

func TestQueueNoProcessor(t *testing.T) {
	queue := NewQueue(1, nil)
	queue.Start(context.Background())
	defer queue.Stop()

	// Enqueue without setting a processor, should not panic.
	task := &Task{Inbound: &types.Inbound{DialogueID: "no-proc", Content: "hi"}}
	if err := queue.Enqueue(task); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)
}

func TestQueueWaitIdle(t *testing.T) {
	queue := NewQueue(1, nil)
	queue.Start(context.Background())
	defer queue.Stop()

	queue.SetProcessor(func(_ context.Context, _ *types.Inbound) (*router.Outcome, error) {
		time.Sleep(100 * time.Millisecond)
		return &router.Outcome{}, nil
	})

	if err := queue.Enqueue(&Task{Inbound: &types.Inbound{DialogueID: "d1"}}); err != nil {
		t.Fatal(err)
	}
	if !queue.WaitIdle(2 * time.Second) {
		t.Error("expected queue to drain within the timeout")
	}
}
