// internal/generate/loop.go
package generate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rainbowcity/dialogue/internal/telemetry"
	"github.com/rainbowcity/dialogue/internal/tool"
	"github.com/rainbowcity/dialogue/pkg/llm"
)

// Apology is the locally synthesized reply when the provider fails before
// producing anything.
const Apology = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."

// degradedNote is appended when the loop has to stop with work left undone.
const degradedNote = "\n\n(Note: I had to stop before finishing every lookup, so parts of this answer may be incomplete.)"

// StreamUpdate is one partial view of the response under construction.
// Text is cumulative; consumers can render it as-is.
type StreamUpdate struct {
	Text string
	Done bool
}

// Invocation records one tool execution inside a run.
type Invocation struct {
	Tool      string        `json:"tool"`
	Arguments string        `json:"arguments"`
	Result    string        `json:"result"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Result is the outcome of a full generation run.
type Result struct {
	Text        string
	Rounds      int
	Degraded    bool
	Invocations []Invocation
}

// Options tunes a single run.
type Options struct {
	// OnDelta receives every partial accumulation and one final update
	// with Done set. May be nil.
	OnDelta func(StreamUpdate)
}

// Loop drives the tool-augmented generation cycle: stream a completion,
// execute any requested tools, fold the results back into the prompt, and
// go again, up to the round ceiling.
type Loop struct {
	provider    llm.Provider
	registry    *tool.Registry
	logger      *zap.Logger
	metrics     *telemetry.Metrics
	maxRounds   int
	toolTimeout time.Duration
}

// New creates a generation loop. maxRounds <= 0 defaults to 3.
func New(provider llm.Provider, registry *tool.Registry, logger *zap.Logger, metrics *telemetry.Metrics, maxRounds int, toolTimeout time.Duration) *Loop {
	if maxRounds <= 0 {
		maxRounds = 3
	}
	if toolTimeout <= 0 {
		toolTimeout = 15 * time.Second
	}
	if metrics == nil {
		metrics = telemetry.NewNopMetrics()
	}
	return &Loop{
		provider:    provider,
		registry:    registry,
		logger:      telemetry.Component(logger, "generate"),
		metrics:     metrics,
		maxRounds:   maxRounds,
		toolTimeout: toolTimeout,
	}
}

// Run executes the loop over the assembled prompt. It never returns an
// error for provider failures: those degrade into an apology or a partial
// answer, because a reply must always reach the dialogue.
func (l *Loop) Run(ctx context.Context, messages []llm.Message, opts Options) (*Result, error) {
	start := time.Now()
	defer func() {
		l.metrics.GenerationSeconds.Observe(time.Since(start).Seconds())
	}()

	prompt := make([]llm.Message, len(messages))
	copy(prompt, messages)

	result := &Result{}
	var acc strings.Builder

	emit := func(done bool) {
		if opts.OnDelta != nil {
			opts.OnDelta(StreamUpdate{Text: acc.String(), Done: done})
		}
	}

	for round := 1; round <= l.maxRounds; round++ {
		result.Rounds = round

		roundText, calls, err := l.streamRound(ctx, prompt, &acc, emit)
		if err != nil {
			l.logger.Warn("provider call failed",
				zap.Int("round", round),
				zap.Error(err))
			result.Degraded = true
			if acc.Len() == 0 {
				acc.WriteString(Apology)
			} else {
				acc.WriteString(degradedNote)
			}
			break
		}

		// No structured calls: look for the text-marker fallback. A marker
		// round is tool intent, not reply prose, so its text is dropped from
		// the accumulator; the follow-up round starts the visible answer.
		if len(calls) == 0 {
			if fallback, _, ok := DetectMarker(roundText); ok {
				calls = []llm.ToolCall{fallback}
				trimmed := acc.String()[:acc.Len()-len(roundText)]
				acc.Reset()
				acc.WriteString(trimmed)
			}
		}

		if len(calls) == 0 {
			// Plain answer, we are done.
			l.metrics.GenerationRounds.Observe(float64(round))
			emit(true)
			result.Text = acc.String()
			return result, nil
		}

		if round == l.maxRounds {
			// Tool intent left but no rounds to satisfy it.
			result.Degraded = true
			acc.WriteString(degradedNote)
			break
		}

		prompt = append(prompt, llm.Message{Role: "assistant", Content: roundText, Tools: calls})
		for _, call := range calls {
			inv := l.execute(ctx, call)
			result.Invocations = append(result.Invocations, inv)
			content := inv.Result
			if inv.Error != "" {
				content = "error: " + inv.Error
			}
			prompt = append(prompt, llm.Message{
				Role:    "tool",
				Content: content,
				Tools:   []llm.ToolCall{{ID: call.ID}},
			})
		}
	}

	l.metrics.GenerationRounds.Observe(float64(result.Rounds))
	emit(true)
	result.Text = acc.String()
	return result, nil
}

// streamRound runs one provider call, forwarding partial accumulations, and
// returns the text and tool calls this round produced.
func (l *Loop) streamRound(ctx context.Context, prompt []llm.Message, acc *strings.Builder, emit func(bool)) (string, []llm.ToolCall, error) {
	stream, err := l.provider.Stream(ctx, prompt, l.registry.AsLLMTools())
	if err != nil {
		return "", nil, err
	}

	var roundText strings.Builder
	var calls []llm.ToolCall
	for delta := range stream {
		if delta.Err != nil {
			return roundText.String(), nil, delta.Err
		}
		if delta.Content != "" {
			roundText.WriteString(delta.Content)
			acc.WriteString(delta.Content)
			emit(false)
		}
		if len(delta.ToolCalls) > 0 {
			calls = append(calls, delta.ToolCalls...)
		}
	}
	return roundText.String(), calls, nil
}

// execute runs one tool call under the per-call timeout. Failures are folded
// into the record, never returned: the model gets to read the error.
func (l *Loop) execute(ctx context.Context, call llm.ToolCall) Invocation {
	inv := Invocation{
		Tool:      call.Function.Name,
		Arguments: string(call.Function.Arguments),
	}
	started := time.Now()

	t, ok := l.registry.Get(call.Function.Name)
	if !ok {
		inv.Error = fmt.Sprintf("unknown tool %q", call.Function.Name)
		inv.Duration = time.Since(started)
		l.metrics.ToolCalls.WithLabelValues(call.Function.Name, "unknown").Inc()
		l.logger.Warn("unknown tool requested", zap.String("tool", call.Function.Name))
		return inv
	}

	execCtx, cancel := context.WithTimeout(ctx, l.toolTimeout)
	defer cancel()

	result, err := t.Execute(execCtx, call.Function.Arguments)
	inv.Duration = time.Since(started)
	if err != nil {
		inv.Error = err.Error()
		l.metrics.ToolCalls.WithLabelValues(call.Function.Name, "error").Inc()
		l.logger.Warn("tool execution failed",
			zap.String("tool", call.Function.Name),
			zap.Error(err))
		return inv
	}

	inv.Result = result
	l.metrics.ToolCalls.WithLabelValues(call.Function.Name, "ok").Inc()
	return inv
}
