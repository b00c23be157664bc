//go:build integration

package test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rainbowcity/dialogue/internal/compose"
	"github.com/rainbowcity/dialogue/internal/engine"
	"github.com/rainbowcity/dialogue/internal/generate"
	"github.com/rainbowcity/dialogue/internal/lifecycle"
	"github.com/rainbowcity/dialogue/internal/parse"
	"github.com/rainbowcity/dialogue/internal/prompt"
	"github.com/rainbowcity/dialogue/internal/push"
	"github.com/rainbowcity/dialogue/internal/router"
	"github.com/rainbowcity/dialogue/internal/scheduler"
	"github.com/rainbowcity/dialogue/internal/store"
	"github.com/rainbowcity/dialogue/internal/tool"
	"github.com/rainbowcity/dialogue/internal/types"
	"github.com/rainbowcity/dialogue/pkg/llm/llmtest"
)

func newEngine(t *testing.T, stores types.Stores, hub *push.Hub, steps ...llmtest.Step) *engine.Engine {
	t.Helper()
	assembler, err := prompt.New("gpt-4", 8000, 1000)
	if err != nil {
		t.Fatal(err)
	}
	registry := tool.NewRegistry()
	return engine.New(engine.Deps{
		Stores:    stores,
		Lifecycle: lifecycle.New(stores, nil),
		Parsers:   parse.NewRegistry(),
		Assembler: assembler,
		Loop:      generate.New(llmtest.NewScripted(steps...), registry, nil, nil, 3, 0),
		Composer:  compose.Defaults(),
		Tools:     registry,
		Hub:       hub,
	})
}

type collectingSubscriber struct {
	mu     sync.Mutex
	frames []push.Frame
}

func (c *collectingSubscriber) Send(_ context.Context, frame push.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
	return nil
}

func (c *collectingSubscriber) count(ft push.FrameType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.frames {
		if f.Type == ft {
			n++
		}
	}
	return n
}

func TestEndToEndSubmit(t *testing.T) {
	stores := store.NewMemoryStores()
	hub := push.NewHub(nil, nil)
	eng := newEngine(t, stores, hub,
		llmtest.Text("reply one"),
		llmtest.Text("reply two"),
		llmtest.Text("reply three"),
	)

	ctx := context.Background()
	eng.Start(ctx, 2)
	defer eng.Stop()

	d, err := eng.CreateHumanAI(ctx, "user1", "agent", engine.CreateInput{})
	if err != nil {
		t.Fatal(err)
	}

	sub := &collectingSubscriber{}
	hub.Subscribe(d.ID, sub)

	// Submit several messages on the same dialogue; lanes keep them FIFO.
	var mu sync.Mutex
	var replies []string
	done := make(chan struct{})
	for i := 0; i < 3; i++ {
		err := eng.Submit(&types.Inbound{
			DialogueID: d.ID,
			SenderID:   "user1",
			Content:    fmt.Sprintf("message %d", i),
		}, func(out *router.Outcome, err error) {
			if err != nil {
				t.Errorf("unexpected error %v", err)
			}
			mu.Lock()
			replies = append(replies, out.Reply.Content)
			if len(replies) == 3 {
				close(done)
			}
			mu.Unlock()
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for replies")
	}

	mu.Lock()
	want := []string{"reply one", "reply two", "reply three"}
	for i, r := range replies {
		if r != want[i] {
			t.Errorf("expected reply[%d] = %q, got %q", i, want[i], r)
		}
	}
	mu.Unlock()

	// Six messages stored: three inbound, three replies.
	msgs, err := stores.Messages.ByDialogue(ctx, d.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 6 {
		t.Errorf("expected 6 messages, got %d", len(msgs))
	}

	// Every turn closed; push frames covered streaming and replies.
	open, err := stores.Turns.Open(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 0 {
		t.Errorf("expected no open turns, got %d", len(open))
	}
	if sub.count(push.FrameNewMessage) != 3 {
		t.Errorf("expected 3 reply frames, got %d", sub.count(push.FrameNewMessage))
	}
	if sub.count(push.FrameStreamResponse) == 0 {
		t.Error("expected stream frames during generation")
	}
}

func TestEndToEndSweeper(t *testing.T) {
	stores := store.NewMemoryStores()
	lc := lifecycle.New(stores, nil)

	// Plant a stale open turn directly, as if a relay dialogue's
	// counterpart never answered.
	turn := &types.Turn{
		ID:         types.NewTurnID(),
		SessionID:  types.NewSessionID(),
		DialogueID: types.NewDialogueID(),
		Status:     types.TurnOpen,
		StartedAt:  time.Now().Add(-time.Hour),
	}
	if err := stores.Turns.Create(context.Background(), turn); err != nil {
		t.Fatal(err)
	}

	s := scheduler.New(stores.Turns, lc, nil, nil, "* * * * * *", 30*time.Minute)
	n, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 swept turn, got %d", n)
	}

	got, err := stores.Turns.Get(context.Background(), turn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.TurnUnresponded {
		t.Errorf("expected unresponded, got %s", got.Status)
	}
}
