package builtin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSearchExecute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Subscription-Token") != "key-123" {
			t.Error("missing subscription token")
		}
		if r.URL.Query().Get("q") != "go generics" {
			t.Errorf("expected query 'go generics', got %q", r.URL.Query().Get("q"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"web": map[string]any{
				"results": []map[string]any{
					{"title": "Go Generics", "url": "https://go.dev", "description": "Type parameters."},
				},
			},
		})
	}))
	defer server.Close()

	tool := NewSearchWithEndpoint("key-123", server.URL)
	args, _ := json.Marshal(map[string]any{"query": "go generics"})

	out, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Go Generics") || !strings.Contains(out, "https://go.dev") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestSearchNoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"web": map[string]any{"results": []any{}}})
	}))
	defer server.Close()

	tool := NewSearchWithEndpoint("key", server.URL)
	args, _ := json.Marshal(map[string]any{"query": "xyzzy"})

	out, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatal(err)
	}
	if out != "No results found." {
		t.Errorf("expected empty-result message, got %q", out)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	if _, err := NewSearch("key").Execute(context.Background(), json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for missing query")
	}
}
