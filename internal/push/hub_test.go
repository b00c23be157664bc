// internal/push/hub_test.go
package push

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rainbowcity/dialogue/internal/types"
)

type recordingSubscriber struct {
	mu     sync.Mutex
	frames []Frame
	fail   bool
}

func (r *recordingSubscriber) Send(_ context.Context, frame Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("send failed")
	}
	r.frames = append(r.frames, frame)
	return nil
}

func (r *recordingSubscriber) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func TestHubFanOut(t *testing.T) {
	hub := NewHub(nil, nil)
	dlg := types.NewDialogueID()
	other := types.NewDialogueID()

	a := &recordingSubscriber{}
	b := &recordingSubscriber{}
	c := &recordingSubscriber{}
	hub.Subscribe(dlg, a)
	hub.Subscribe(dlg, b)
	hub.Subscribe(other, c)

	msg := &types.Message{ID: types.NewMessageID(), DialogueID: dlg, Content: "hi"}
	hub.Publish(context.Background(), NewMessageFrame(msg))

	if a.count() != 1 || b.count() != 1 {
		t.Errorf("expected both dialogue subscribers to receive, got %d and %d", a.count(), b.count())
	}
	if c.count() != 0 {
		t.Error("expected other dialogue's subscriber untouched")
	}
	if a.frames[0].Type != FrameNewMessage {
		t.Errorf("expected new_message frame, got %s", a.frames[0].Type)
	}
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub(nil, nil)
	dlg := types.NewDialogueID()

	sub := &recordingSubscriber{}
	unsubscribe := hub.Subscribe(dlg, sub)
	unsubscribe()

	hub.Publish(context.Background(), StreamFrame(dlg, "t1", "partial", false))
	if sub.count() != 0 {
		t.Error("expected no delivery after unsubscribe")
	}
	if hub.SubscriberCount(dlg) != 0 {
		t.Error("expected empty subscription set removed")
	}
}

func TestHubDropsFailingSubscribers(t *testing.T) {
	hub := NewHub(nil, nil)
	dlg := types.NewDialogueID()

	healthy := &recordingSubscriber{}
	broken := &recordingSubscriber{fail: true}
	hub.Subscribe(dlg, healthy)
	hub.Subscribe(dlg, broken)

	frame := StreamFrame(dlg, "t1", "partial", false)
	hub.Publish(context.Background(), frame)

	// Failure must not block the healthy subscriber.
	if healthy.count() != 1 {
		t.Errorf("expected healthy delivery, got %d", healthy.count())
	}
	if hub.SubscriberCount(dlg) != 1 {
		t.Errorf("expected broken subscriber dropped, count=%d", hub.SubscriberCount(dlg))
	}

	hub.Publish(context.Background(), frame)
	if healthy.count() != 2 {
		t.Error("expected continued delivery after drop")
	}
}

func TestStreamFramePayload(t *testing.T) {
	frame := StreamFrame("d1", "t1", "hello wor", false)
	payload, ok := frame.Payload.(StreamPayload)
	if !ok {
		t.Fatalf("expected StreamPayload, got %T", frame.Payload)
	}
	if payload.IsComplete {
		t.Error("expected incomplete frame")
	}
	if payload.Content != "hello wor" {
		t.Errorf("unexpected content %q", payload.Content)
	}

	final := StreamFrame("d1", "t1", "hello world", true)
	if !final.Payload.(StreamPayload).IsComplete {
		t.Error("expected final frame marked complete")
	}
}
