// internal/store/memory_test.go
package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rainbowcity/dialogue/internal/types"
)

func TestMemoryDialogueCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryDialogueStore()

	d := &types.Dialogue{
		ID:        types.NewDialogueID(),
		Type:      types.DialogueHumanAI,
		CreatedAt: time.Now(),
		IsActive:  true,
	}
	if err := s.Create(ctx, d); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != types.DialogueHumanAI {
		t.Errorf("expected type %s, got %s", types.DialogueHumanAI, got.Type)
	}

	// Mutating the returned copy must not leak into the store.
	got.Title = "changed"
	again, _ := s.Get(ctx, d.ID)
	if again.Title == "changed" {
		t.Error("Get returned an aliased pointer")
	}

	d.IsActive = false
	if err := s.Update(ctx, d); err != nil {
		t.Fatal(err)
	}
	active, err := s.Active(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Errorf("expected no active dialogues, got %d", len(active))
	}

	if err := s.Delete(ctx, d.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, d.ID); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryCopiesAreDeep(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryDialogueStore()

	d := &types.Dialogue{
		ID:           types.NewDialogueID(),
		Type:         types.DialogueHumanHumanGroup,
		Participants: []string{"ann", "ben"},
		Sessions:     []types.SessionID{"s1"},
		Metadata:     map[string]any{"group_members": []string{"ann", "ben"}},
		IsActive:     true,
	}
	if err := s.Create(ctx, d); err != nil {
		t.Fatal(err)
	}

	// Mutating the caller's maps and slices after Create must not reach
	// the stored copy.
	d.Metadata["group_members"] = "clobbered"
	d.Participants[0] = "mallory"
	d.Sessions[0] = "s2"

	got, err := s.Get(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Participants[0] != "ann" || got.Sessions[0] != "s1" {
		t.Errorf("stored slices aliased the caller's, got %+v", got)
	}
	if _, ok := got.Metadata["group_members"].([]string); !ok {
		t.Errorf("stored metadata aliased the caller's map, got %v", got.Metadata)
	}

	// And mutating a returned copy must not reach the store either.
	got.Metadata["group_members"] = "clobbered"
	got.Participants[1] = "mallory"
	again, _ := s.Get(ctx, d.ID)
	if again.Participants[1] != "ben" {
		t.Error("Get returned an aliased participant slice")
	}
	if _, ok := again.Metadata["group_members"].([]string); !ok {
		t.Error("Get returned an aliased metadata map")
	}

	turns := NewMemoryTurnStore()
	turn := &types.Turn{
		ID:       types.NewTurnID(),
		Status:   types.TurnOpen,
		Messages: []types.MessageID{"m1"},
		Metadata: map[string]any{"expected_window_minutes": 5},
	}
	if err := turns.Create(ctx, turn); err != nil {
		t.Fatal(err)
	}
	turn.Messages[0] = "m2"
	delete(turn.Metadata, "expected_window_minutes")
	gotTurn, err := turns.Get(ctx, turn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if gotTurn.Messages[0] != "m1" || gotTurn.Metadata["expected_window_minutes"] == nil {
		t.Errorf("stored turn aliased the caller's state, got %+v", gotTurn)
	}
}

func TestMemoryGetMissing(t *testing.T) {
	ctx := context.Background()
	if _, err := NewMemoryTurnStore().Get(ctx, "nope"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := NewMemoryMessageStore().Update(ctx, &types.Message{ID: "nope"}); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryListOrderSurvivesUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryDialogueStore()

	var ids []types.DialogueID
	for i := 0; i < 5; i++ {
		d := &types.Dialogue{ID: types.NewDialogueID(), Type: types.DialogueHumanAI}
		ids = append(ids, d.ID)
		if err := s.Create(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	// Updating the middle entry must not move it.
	if err := s.Update(ctx, &types.Dialogue{ID: ids[2], Type: types.DialogueHumanAI, Title: "bumped"}); err != nil {
		t.Fatal(err)
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 dialogues, got %d", len(all))
	}
	for i, d := range all {
		if d.ID != ids[i] {
			t.Errorf("position %d: expected %s, got %s", i, ids[i], d.ID)
		}
	}
}

func TestMemoryMessageByDialogueLimit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryMessageStore()
	dlg := types.NewDialogueID()

	for i := 0; i < 10; i++ {
		m := &types.Message{
			ID:         types.NewMessageID(),
			DialogueID: dlg,
			Content:    string(rune('a' + i)),
		}
		if err := s.Create(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	tail, err := s.ByDialogue(ctx, dlg, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(tail))
	}
	if tail[0].Content != "h" || tail[2].Content != "j" {
		t.Errorf("expected most recent tail oldest first, got %s..%s", tail[0].Content, tail[2].Content)
	}
}

func TestMemoryTurnOpenScan(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTurnStore()

	open := &types.Turn{ID: types.NewTurnID(), Status: types.TurnOpen}
	closed := &types.Turn{ID: types.NewTurnID(), Status: types.TurnClosed}
	if err := s.Create(ctx, open); err != nil {
		t.Fatal(err)
	}
	if err := s.Create(ctx, closed); err != nil {
		t.Fatal(err)
	}

	got, err := s.Open(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != open.ID {
		t.Errorf("expected only the open turn, got %d", len(got))
	}
}
