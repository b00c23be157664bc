// internal/types/models_test.go
package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDialogueSerialization(t *testing.T) {
	d := Dialogue{
		ID:             NewDialogueID(),
		Type:           DialogueHumanAI,
		Title:          "morning check-in",
		Participants:   []string{"user-1", "assistant"},
		CreatedAt:      time.Now(),
		LastActivityAt: time.Now(),
		IsActive:       true,
	}

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}

	var decoded Dialogue
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}

	if decoded.Type != DialogueHumanAI {
		t.Errorf("expected dialogue_type %s, got %s", DialogueHumanAI, decoded.Type)
	}
	if len(decoded.Participants) != 2 {
		t.Errorf("expected 2 participants, got %d", len(decoded.Participants))
	}
}

func TestTurnTransitions(t *testing.T) {
	cases := []struct {
		from, to TurnStatus
		ok       bool
	}{
		{TurnOpen, TurnResponded, true},
		{TurnOpen, TurnUnresponded, true},
		{TurnOpen, TurnClosed, true},
		{TurnUnresponded, TurnResponded, true},
		{TurnResponded, TurnClosed, true},
		{TurnResponded, TurnOpen, false},
		{TurnClosed, TurnResponded, false},
		{TurnClosed, TurnOpen, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransition(c.to); got != c.ok {
			t.Errorf("%s -> %s: expected %v, got %v", c.from, c.to, c.ok, got)
		}
	}
}

func TestSessionTypeFor(t *testing.T) {
	cases := map[DialogueType]SessionType{
		DialogueHumanAI:           SessionDialogue,
		DialogueAISelf:            SessionIntrospection,
		DialogueAIAI:              SessionMultiAgent,
		DialogueHumanHumanPrivate: SessionGroupChat,
		DialogueHumanHumanGroup:   SessionGroupChat,
		DialogueHumanAIGroup:      SessionMixedGroup,
		DialogueAIMultiHuman:      SessionMixedGroup,
		DialogueType("martian"):   SessionDialogue,
	}
	for dt, want := range cases {
		if got := SessionTypeFor(dt); got != want {
			t.Errorf("%s: expected %s, got %s", dt, want, got)
		}
	}
}

func TestMetaStrings(t *testing.T) {
	m := map[string]any{
		"group_members": []any{"a", "b", 3},
		"second":        "x",
	}
	got := MetaStrings(m, "group_members")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("unexpected members: %v", got)
	}
	if MetaString(m, "second") != "x" {
		t.Error("expected string value")
	}
	if MetaString(nil, "second") != "" {
		t.Error("expected empty string for nil map")
	}
}
