// internal/push/hub.go
package push

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/rainbowcity/dialogue/internal/telemetry"
	"github.com/rainbowcity/dialogue/internal/types"
)

// Subscriber receives frames for one dialogue. Send must be safe for
// concurrent use.
type Subscriber interface {
	Send(ctx context.Context, frame Frame) error
}

// Hub fans frames out to the subscribers of each dialogue. Delivery is best
// effort: a failing subscriber is logged and dropped, never propagated, so
// a dead websocket cannot fail message processing.
type Hub struct {
	mu      sync.RWMutex
	subs    map[types.DialogueID]map[Subscriber]struct{}
	logger  *zap.Logger
	metrics *telemetry.Metrics
}

func NewHub(logger *zap.Logger, metrics *telemetry.Metrics) *Hub {
	if metrics == nil {
		metrics = telemetry.NewNopMetrics()
	}
	return &Hub{
		subs:    make(map[types.DialogueID]map[Subscriber]struct{}),
		logger:  telemetry.Component(logger, "push"),
		metrics: metrics,
	}
}

// Subscribe registers a subscriber for a dialogue and returns the matching
// unsubscribe function.
func (h *Hub) Subscribe(id types.DialogueID, sub Subscriber) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[Subscriber]struct{})
	}
	h.subs[id][sub] = struct{}{}

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[id]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, id)
			}
		}
	}
}

// SubscriberCount reports how many subscribers a dialogue currently has.
func (h *Hub) SubscriberCount(id types.DialogueID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[id])
}

// Publish delivers a frame to every subscriber of its dialogue. Subscribers
// whose Send fails are removed.
func (h *Hub) Publish(ctx context.Context, frame Frame) {
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.subs[frame.DialogueID]))
	for sub := range h.subs[frame.DialogueID] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	h.metrics.PushFrames.WithLabelValues(string(frame.Type)).Inc()

	var failed []Subscriber
	for _, sub := range targets {
		if err := sub.Send(ctx, frame); err != nil {
			h.logger.Warn("push delivery failed",
				zap.String("dialogue_id", string(frame.DialogueID)),
				zap.String("frame", string(frame.Type)),
				zap.Error(err))
			failed = append(failed, sub)
		}
	}

	if len(failed) > 0 {
		h.mu.Lock()
		if set, ok := h.subs[frame.DialogueID]; ok {
			for _, sub := range failed {
				delete(set, sub)
			}
			if len(set) == 0 {
				delete(h.subs, frame.DialogueID)
			}
		}
		h.mu.Unlock()
	}
}
