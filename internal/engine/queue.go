// internal/engine/queue.go
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/rainbowcity/dialogue/internal/router"
	"github.com/rainbowcity/dialogue/internal/telemetry"
	"github.com/rainbowcity/dialogue/internal/types"
)

// Task is one queued inbound message. OnDone, when set, receives the
// processing outcome on the lane goroutine.
type Task struct {
	Inbound *types.Inbound
	OnDone  func(*router.Outcome, error)
}

// Queue gives every dialogue its own FIFO lane so exchanges within a
// dialogue process strictly in arrival order, while a weighted semaphore
// caps total concurrency across dialogues.
type Queue struct {
	lanes     map[types.DialogueID]chan *Task
	semaphore *semaphore.Weighted
	processor func(context.Context, *types.Inbound) (*router.Outcome, error)
	logger    *zap.Logger
	active    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewQueue creates a queue allowing up to maxConcurrent exchanges to run
// simultaneously across all dialogue lanes.
func NewQueue(maxConcurrent int64, logger *zap.Logger) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Queue{
		lanes:     make(map[types.DialogueID]chan *Task),
		semaphore: semaphore.NewWeighted(maxConcurrent),
		logger:    telemetry.Component(logger, "queue"),
	}
}

// Start initializes the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context, closes all lanes, and waits for in-flight
// exchanges to finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	for _, lane := range q.lanes {
		close(lane)
	}
	q.lanes = make(map[types.DialogueID]chan *Task)
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds a task to its dialogue's lane, creating the lane and its
// goroutine on first use. A full lane is an error rather than a block.
func (q *Queue) Enqueue(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := task.Inbound.DialogueID
	lane, exists := q.lanes[id]
	if !exists {
		lane = make(chan *Task, 100)
		q.lanes[id] = lane
		q.wg.Add(1)
		go q.processLane(id, lane)
	}

	select {
	case lane <- task:
		return nil
	default:
		return fmt.Errorf("queue full for dialogue %s", id)
	}
}

// processLane drains a single dialogue lane, acquiring a semaphore slot
// before running the processor synchronously. Strict FIFO within the
// dialogue, bounded parallelism across dialogues.
func (q *Queue) processLane(id types.DialogueID, lane chan *Task) {
	defer q.wg.Done()
	for {
		select {
		case task, ok := <-lane:
			if !ok {
				return
			}
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				return
			}
			if q.processor != nil {
				q.active.Add(1)
				out, err := q.processor(q.ctx, task.Inbound)
				if err != nil {
					q.logger.Error("exchange failed",
						zap.String("dialogue_id", string(id)),
						zap.Error(err))
				}
				if task.OnDone != nil {
					task.OnDone(out, err)
				}
				q.active.Add(-1)
			}
			q.semaphore.Release(1)
		case <-q.ctx.Done():
			return
		}
	}
}

// WaitIdle blocks until no exchanges are actively being processed, or the
// timeout expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// SetProcessor sets the function invoked for each dequeued task.
func (q *Queue) SetProcessor(fn func(context.Context, *types.Inbound) (*router.Outcome, error)) {
	q.processor = fn
}

// Start wires the engine's queue and begins accepting submissions.
func (e *Engine) Start(ctx context.Context, maxConcurrent int64) {
	e.queue = NewQueue(maxConcurrent, e.logger)
	e.queue.SetProcessor(e.ProcessMessage)
	e.queue.Start(ctx)
}

// Stop drains the queue and waits for in-flight exchanges.
func (e *Engine) Stop() {
	if e.queue != nil {
		e.queue.Stop()
	}
}

// Submit queues an inbound message for asynchronous processing. OnDone, if
// non-nil, is invoked with the outcome. Start must have been called.
func (e *Engine) Submit(in *types.Inbound, onDone func(*router.Outcome, error)) error {
	if e.queue == nil {
		return fmt.Errorf("engine not started")
	}
	return e.queue.Enqueue(&Task{Inbound: in, OnDone: onDone})
}

// WaitIdle reports whether all queued work finished within the timeout.
func (e *Engine) WaitIdle(timeout time.Duration) bool {
	if e.queue == nil {
		return true
	}
	return e.queue.WaitIdle(timeout)
}
