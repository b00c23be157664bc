// internal/generate/loop_test.go
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rainbowcity/dialogue/internal/tool"
	"github.com/rainbowcity/dialogue/pkg/llm"
	"github.com/rainbowcity/dialogue/pkg/llm/llmtest"
)

type echoTool struct {
	fail bool
	slow time.Duration
}

func (e *echoTool) Name() string                { return "echo" }
func (e *echoTool) Description() string         { return "echo arguments back" }
func (e *echoTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (e *echoTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	if e.slow > 0 {
		select {
		case <-time.After(e.slow):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if e.fail {
		return "", errors.New("echo broke")
	}
	return "echo: " + string(args), nil
}

func testRegistry(tools ...tool.Tool) *tool.Registry {
	r := tool.NewRegistry()
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

func userPrompt(text string) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: text},
	}
}

func TestRunPlainAnswer(t *testing.T) {
	provider := llmtest.NewScripted(llmtest.Step{
		Response:  &llm.Response{Content: "four is 4"},
		ChunkSize: 3,
	})
	loop := New(provider, testRegistry(), nil, nil, 3, 0)

	var updates []StreamUpdate
	result, err := loop.Run(context.Background(), userPrompt("what is 2+2?"), Options{
		OnDelta: func(u StreamUpdate) { updates = append(updates, u) },
	})
	if err != nil {
		t.Fatal(err)
	}

	if result.Text != "four is 4" {
		t.Errorf("expected full answer, got %q", result.Text)
	}
	if result.Rounds != 1 || result.Degraded {
		t.Errorf("expected 1 clean round, got %+v", result)
	}

	// Every update is a prefix of the next, and the last is Done.
	if len(updates) < 2 {
		t.Fatalf("expected streamed updates, got %d", len(updates))
	}
	for i := 1; i < len(updates); i++ {
		if !strings.HasPrefix(updates[i].Text, updates[i-1].Text) {
			t.Errorf("update %d is not monotonic: %q -> %q", i, updates[i-1].Text, updates[i].Text)
		}
	}
	last := updates[len(updates)-1]
	if !last.Done || last.Text != "four is 4" {
		t.Errorf("expected final complete update, got %+v", last)
	}
}

func TestRunToolRound(t *testing.T) {
	provider := llmtest.NewScripted(
		llmtest.CallTool("echo", `{"x":1}`),
		llmtest.Text("the tool said x=1"),
	)
	loop := New(provider, testRegistry(&echoTool{}), nil, nil, 3, 0)

	result, err := loop.Run(context.Background(), userPrompt("run echo"), Options{})
	if err != nil {
		t.Fatal(err)
	}

	if result.Text != "the tool said x=1" {
		t.Errorf("unexpected answer: %q", result.Text)
	}
	if result.Rounds != 2 {
		t.Errorf("expected 2 rounds, got %d", result.Rounds)
	}
	if len(result.Invocations) != 1 || result.Invocations[0].Tool != "echo" {
		t.Fatalf("expected 1 echo invocation, got %+v", result.Invocations)
	}
	if result.Invocations[0].Result != `echo: {"x":1}` {
		t.Errorf("unexpected invocation result: %q", result.Invocations[0].Result)
	}

	// The second provider call must carry the folded tool result.
	second := provider.Calls[1]
	found := false
	for _, m := range second {
		if m.Role == "tool" && strings.Contains(m.Content, `echo: {"x":1}`) {
			found = true
		}
	}
	if !found {
		t.Error("expected tool result folded into the second prompt")
	}
}

func TestRunUnknownToolFolded(t *testing.T) {
	provider := llmtest.NewScripted(
		llmtest.CallTool("teleport", `{}`),
		llmtest.Text("I cannot teleport"),
	)
	loop := New(provider, testRegistry(&echoTool{}), nil, nil, 3, 0)

	result, err := loop.Run(context.Background(), userPrompt("teleport me"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Text != "I cannot teleport" {
		t.Errorf("unexpected answer: %q", result.Text)
	}
	if result.Invocations[0].Error == "" || !strings.Contains(result.Invocations[0].Error, "unknown tool") {
		t.Errorf("expected unknown tool error, got %+v", result.Invocations[0])
	}

	second := provider.Calls[1]
	found := false
	for _, m := range second {
		if m.Role == "tool" && strings.Contains(m.Content, "unknown tool") {
			found = true
		}
	}
	if !found {
		t.Error("expected unknown-tool failure folded into the second prompt")
	}
}

func TestRunToolFailureFolded(t *testing.T) {
	provider := llmtest.NewScripted(
		llmtest.CallTool("echo", `{}`),
		llmtest.Text("echo is down, sorry"),
	)
	loop := New(provider, testRegistry(&echoTool{fail: true}), nil, nil, 3, 0)

	result, err := loop.Run(context.Background(), userPrompt("run echo"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Text != "echo is down, sorry" {
		t.Errorf("unexpected answer: %q", result.Text)
	}
	if result.Invocations[0].Error != "echo broke" {
		t.Errorf("expected recorded failure, got %+v", result.Invocations[0])
	}
}

func TestRunFirstCallFailureApologizes(t *testing.T) {
	provider := llmtest.NewScripted(llmtest.Fail(errors.New("upstream 500")))
	loop := New(provider, testRegistry(), nil, nil, 3, 0)

	var last StreamUpdate
	result, err := loop.Run(context.Background(), userPrompt("hello"), Options{
		OnDelta: func(u StreamUpdate) { last = u },
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Text != Apology {
		t.Errorf("expected apology, got %q", result.Text)
	}
	if !result.Degraded {
		t.Error("expected degraded result")
	}
	if !last.Done || last.Text != Apology {
		t.Errorf("expected final update carrying apology, got %+v", last)
	}
}

func TestRunCeilingExhaustion(t *testing.T) {
	provider := llmtest.NewScripted(
		llmtest.CallTool("echo", `{"n":1}`),
		llmtest.CallTool("echo", `{"n":2}`),
		llmtest.CallTool("echo", `{"n":3}`),
	)
	loop := New(provider, testRegistry(&echoTool{}), nil, nil, 3, 0)

	result, err := loop.Run(context.Background(), userPrompt("loop forever"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Degraded {
		t.Error("expected degraded result at the round ceiling")
	}
	if result.Rounds != 3 {
		t.Errorf("expected 3 rounds, got %d", result.Rounds)
	}
	// Only the first two calls get executed: the third round's intent has
	// no round left to satisfy it.
	if len(result.Invocations) != 2 {
		t.Errorf("expected 2 invocations, got %d", len(result.Invocations))
	}
	if provider.CallCount() != 3 {
		t.Errorf("expected exactly 3 provider calls, got %d", provider.CallCount())
	}
}

func TestRunMarkerFallback(t *testing.T) {
	provider := llmtest.NewScripted(
		llmtest.Text("Let me check.\nUSE_TOOL: echo {\"q\":\"hi\"}"),
		llmtest.Text("the echo came back"),
	)
	loop := New(provider, testRegistry(&echoTool{}), nil, nil, 3, 0)

	var last StreamUpdate
	result, err := loop.Run(context.Background(), userPrompt("check"), Options{
		OnDelta: func(u StreamUpdate) { last = u },
	})
	if err != nil {
		t.Fatal(err)
	}
	// The marker round's prose is not part of the answer.
	if result.Text != "the echo came back" {
		t.Errorf("unexpected answer: %q", result.Text)
	}
	if strings.Contains(result.Text, "Let me check") {
		t.Errorf("marker round text leaked into the answer: %q", result.Text)
	}
	if !last.Done || last.Text != result.Text {
		t.Errorf("expected final update to match the answer, got %+v", last)
	}
	if len(result.Invocations) != 1 || result.Invocations[0].Tool != "echo" {
		t.Fatalf("expected marker-driven echo invocation, got %+v", result.Invocations)
	}
}

func TestRunToolTimeout(t *testing.T) {
	provider := llmtest.NewScripted(
		llmtest.CallTool("echo", `{}`),
		llmtest.Text("that took too long"),
	)
	loop := New(provider, testRegistry(&echoTool{slow: 200 * time.Millisecond}), nil, nil, 3, 10*time.Millisecond)

	result, err := loop.Run(context.Background(), userPrompt("slow echo"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Invocations[0].Error == "" {
		t.Errorf("expected timeout recorded, got %+v", result.Invocations[0])
	}
	if result.Text != "that took too long" {
		t.Errorf("unexpected answer: %q", result.Text)
	}
}

func TestDetectMarker(t *testing.T) {
	call, cleaned, ok := DetectMarker("thinking...\nUSE_TOOL: weather {\"city\":\"Oslo\"}\ndone")
	if !ok {
		t.Fatal("expected marker hit")
	}
	if call.Function.Name != "weather" {
		t.Errorf("expected weather, got %q", call.Function.Name)
	}
	if string(call.Function.Arguments) != `{"city":"Oslo"}` {
		t.Errorf("unexpected arguments: %s", call.Function.Arguments)
	}
	if cleaned != "thinking...\ndone" {
		t.Errorf("unexpected cleaned text: %q", cleaned)
	}

	// Bare name defaults to empty arguments.
	call, _, ok = DetectMarker("USE_TOOL: calculator")
	if !ok || call.Function.Name != "calculator" || string(call.Function.Arguments) != "{}" {
		t.Errorf("expected bare marker parse, got %+v ok=%v", call, ok)
	}

	for _, text := range []string{
		"no marker here",
		"USE_TOOL: bad name {\"x\":1}",
		"USE_TOOL: tool {not json}",
		fmt.Sprintf("mention of %s in prose without a call", "USE_TOOL"),
	} {
		if _, _, ok := DetectMarker(text); ok {
			t.Errorf("%q: expected no marker", text)
		}
	}
}
