// internal/api/server_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rainbowcity/dialogue/internal/compose"
	"github.com/rainbowcity/dialogue/internal/engine"
	"github.com/rainbowcity/dialogue/internal/generate"
	"github.com/rainbowcity/dialogue/internal/lifecycle"
	"github.com/rainbowcity/dialogue/internal/parse"
	"github.com/rainbowcity/dialogue/internal/prompt"
	"github.com/rainbowcity/dialogue/internal/push"
	"github.com/rainbowcity/dialogue/internal/store"
	"github.com/rainbowcity/dialogue/internal/tool"
	"github.com/rainbowcity/dialogue/internal/types"
	"github.com/rainbowcity/dialogue/pkg/llm/llmtest"
)

func newTestServer(t *testing.T, steps ...llmtest.Step) (*Server, *engine.Engine, types.Stores) {
	t.Helper()

	stores := store.NewMemoryStores()
	registry := tool.NewRegistry()
	hub := push.NewHub(nil, nil)

	assembler, err := prompt.New("gpt-4", 8000, 1000)
	if err != nil {
		t.Fatal(err)
	}
	eng := engine.New(engine.Deps{
		Stores:    stores,
		Lifecycle: lifecycle.New(stores, nil),
		Parsers:   parse.NewRegistry(),
		Assembler: assembler,
		Loop:      generate.New(llmtest.NewScripted(steps...), registry, nil, nil, 3, 0),
		Composer:  compose.Defaults(),
		Tools:     registry,
		Hub:       hub,
	})
	return NewServer(eng, stores, hub, nil), eng, stores
}

func postJSON(t *testing.T, srv *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestCreateDialogueEndpoint(t *testing.T) {
	srv, _, stores := newTestServer(t)

	rec := postJSON(t, srv, "/api/dialogues", map[string]any{
		"dialogue_type": "human_ai",
		"human_id":      "u1",
		"agent_id":      "helper",
		"title":         "test chat",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var d types.Dialogue
	if err := json.NewDecoder(rec.Body).Decode(&d); err != nil {
		t.Fatal(err)
	}
	if d.Type != types.DialogueHumanAI || d.Title != "test chat" {
		t.Errorf("unexpected dialogue %+v", d)
	}
	if _, err := stores.Dialogues.Get(context.Background(), d.ID); err != nil {
		t.Errorf("expected dialogue persisted, got %v", err)
	}
}

func TestCreateDialogueValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := postJSON(t, srv, "/api/dialogues", map[string]any{
		"dialogue_type": "human_human_group",
		"members":       []string{"only-one"},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}

	rec = postJSON(t, srv, "/api/dialogues", map[string]any{
		"dialogue_type": "seance",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown type, got %d", rec.Code)
	}
}

func TestPostMessageSync(t *testing.T) {
	srv, eng, _ := newTestServer(t, llmtest.Text("Hi back."))
	ctx := context.Background()

	d, err := eng.CreateHumanAI(ctx, "u1", "helper", engine.CreateInput{})
	if err != nil {
		t.Fatal(err)
	}

	rec := postJSON(t, srv, "/api/messages?sync=true", map[string]any{
		"dialogue_id": string(d.ID),
		"sender_id":   "u1",
		"content":     "hi",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var out struct {
		Reply *types.Message `json:"reply"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Reply == nil || out.Reply.Content != "Hi back." {
		t.Errorf("unexpected reply %+v", out.Reply)
	}
}

func TestPostMessageUnknownDialogue(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := postJSON(t, srv, "/api/messages?sync=true", map[string]any{
		"dialogue_id": "no-such-dialogue",
		"content":     "hello?",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListMessagesEndpoint(t *testing.T) {
	srv, eng, _ := newTestServer(t, llmtest.Text("noted"))
	ctx := context.Background()

	d, err := eng.CreateHumanAI(ctx, "u1", "helper", engine.CreateInput{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.ProcessMessage(ctx, &types.Inbound{
		DialogueID: d.ID, SenderID: "u1", Content: "remember this",
	}); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dialogues/"+string(d.ID)+"/messages", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var msgs []*types.Message
	if err := json.NewDecoder(rec.Body).Decode(&msgs); err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Errorf("expected inbound plus reply, got %d", len(msgs))
	}
}

func TestCloseDialogueEndpoint(t *testing.T) {
	srv, eng, stores := newTestServer(t)
	ctx := context.Background()

	d, err := eng.CreateHumanAI(ctx, "u1", "helper", engine.CreateInput{})
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/dialogues/"+string(d.ID), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	got, err := stores.Dialogues.Get(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsActive {
		t.Error("expected dialogue deactivated")
	}

	// Closing twice is a precondition failure.
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/dialogues/"+string(d.ID), nil))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 on double close, got %d", rec.Code)
	}
}
