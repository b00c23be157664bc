// Package llmtest provides a scripted Provider for tests: each call pops
// the next step and either fails or replays its response, streaming content
// in fixed-size chunks.
package llmtest

import (
	"context"
	"sync"

	"github.com/rainbowcity/dialogue/pkg/llm"
)

// Step is one scripted provider call.
type Step struct {
	Response  *llm.Response
	Err       error
	ChunkSize int
}

// Text scripts a plain text completion.
func Text(content string) Step {
	return Step{Response: &llm.Response{Content: content}}
}

// CallTool scripts a completion that requests one tool invocation.
func CallTool(name, arguments string) Step {
	return Step{Response: &llm.Response{
		ToolCalls: []llm.ToolCall{{
			ID:   "call-" + name,
			Type: "function",
			Function: llm.FunctionCall{
				Name:      name,
				Arguments: []byte(arguments),
			},
		}},
	}}
}

// Fail scripts a provider failure.
func Fail(err error) Step {
	return Step{Err: err}
}

// Scripted satisfies llm.Provider and records every prompt it is handed.
type Scripted struct {
	mu    sync.Mutex
	steps []Step

	// Calls holds the message history of each request, in order.
	Calls [][]llm.Message
}

func NewScripted(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

func (s *Scripted) next(messages []llm.Message) Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]llm.Message, len(messages))
	copy(cp, messages)
	s.Calls = append(s.Calls, cp)
	if len(s.steps) == 0 {
		return Text("")
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step
}

// CallCount returns how many requests the script has served.
func (s *Scripted) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

func (s *Scripted) Complete(_ context.Context, messages []llm.Message, _ []llm.Tool) (*llm.Response, error) {
	step := s.next(messages)
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Response, nil
}

func (s *Scripted) Stream(_ context.Context, messages []llm.Message, _ []llm.Tool) (<-chan llm.Delta, error) {
	step := s.next(messages)
	if step.Err != nil {
		return nil, step.Err
	}

	chunkSize := step.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 5
	}

	ch := make(chan llm.Delta, 16)
	go func() {
		defer close(ch)
		content := step.Response.Content
		for i := 0; i < len(content); i += chunkSize {
			end := i + chunkSize
			if end > len(content) {
				end = len(content)
			}
			ch <- llm.Delta{Content: content[i:end]}
		}
		finish := "stop"
		if len(step.Response.ToolCalls) > 0 {
			finish = "tool_calls"
		}
		ch <- llm.Delta{ToolCalls: step.Response.ToolCalls, FinishReason: finish}
	}()
	return ch, nil
}

var _ llm.Provider = (*Scripted)(nil)
