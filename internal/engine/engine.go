// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rainbowcity/dialogue/internal/compose"
	"github.com/rainbowcity/dialogue/internal/generate"
	"github.com/rainbowcity/dialogue/internal/lifecycle"
	"github.com/rainbowcity/dialogue/internal/parse"
	"github.com/rainbowcity/dialogue/internal/prompt"
	"github.com/rainbowcity/dialogue/internal/push"
	"github.com/rainbowcity/dialogue/internal/router"
	"github.com/rainbowcity/dialogue/internal/telemetry"
	"github.com/rainbowcity/dialogue/internal/tool"
	"github.com/rainbowcity/dialogue/internal/types"
)

// historyLimit caps how many stored messages are offered to the prompt
// assembler; the token budget trims further from there.
const historyLimit = 200

// Deps bundles the collaborators the engine is wired from.
type Deps struct {
	Stores    types.Stores
	Lifecycle *lifecycle.Controller
	Parsers   *parse.Registry
	Assembler *prompt.Assembler
	Loop      *generate.Loop
	Composer  *compose.Composer
	Tools     *tool.Registry
	Hub       *push.Hub
	Logger    *zap.Logger
	Metrics   *telemetry.Metrics
}

// Engine orchestrates one inbound message end to end: state bookkeeping,
// parsing, routing to the topology handler, reply generation, and push
// delivery. It implements router.Pipeline so handlers can drive generation
// and relay without a dependency cycle.
type Engine struct {
	stores    types.Stores
	lifecycle *lifecycle.Controller
	parsers   *parse.Registry
	assembler *prompt.Assembler
	loop      *generate.Loop
	composer  *compose.Composer
	tools     *tool.Registry
	hub       *push.Hub
	router    *router.Router
	logger    *zap.Logger
	metrics   *telemetry.Metrics

	queue *Queue

	// inFlight guards against concurrent processing on the same dialogue;
	// the queue serializes per dialogue, so this only trips for callers
	// that bypass Submit.
	mu       sync.Mutex
	inFlight map[types.DialogueID]struct{}
}

func New(d Deps) *Engine {
	if d.Metrics == nil {
		d.Metrics = telemetry.NewNopMetrics()
	}
	e := &Engine{
		stores:    d.Stores,
		lifecycle: d.Lifecycle,
		parsers:   d.Parsers,
		assembler: d.Assembler,
		loop:      d.Loop,
		composer:  d.Composer,
		tools:     d.Tools,
		hub:       d.Hub,
		logger:    telemetry.Component(d.Logger, "engine"),
		metrics:   d.Metrics,
		inFlight:  make(map[types.DialogueID]struct{}),
	}
	e.router = router.New(e, d.Logger, d.Metrics)
	return e
}

// Router exposes the topology router, mainly for tests.
func (e *Engine) Router() *router.Router { return e.router }

// ProcessMessage runs one inbound message through the full pipeline. The
// turn it opens is responded before the call returns; failures after the
// message is persisted leave the turn open for the sweeper.
func (e *Engine) ProcessMessage(ctx context.Context, in *types.Inbound) (*router.Outcome, error) {
	if err := e.acquire(in.DialogueID); err != nil {
		return nil, err
	}
	defer e.release(in.DialogueID)

	out, err := e.process(ctx, in)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	dt := "unknown"
	if d, derr := e.stores.Dialogues.Get(ctx, in.DialogueID); derr == nil {
		dt = string(d.Type)
	}
	e.metrics.MessagesProcessed.WithLabelValues(dt, outcome).Inc()
	return out, err
}

func (e *Engine) process(ctx context.Context, in *types.Inbound) (*router.Outcome, error) {
	d, err := e.stores.Dialogues.Get(ctx, in.DialogueID)
	if err != nil {
		return nil, fmt.Errorf("load dialogue: %w", err)
	}
	if !d.IsActive {
		return nil, fmt.Errorf("dialogue %s is closed: %w", d.ID, types.ErrPrecondition)
	}

	sess, err := e.lifecycle.ActiveSession(ctx, d)
	if err != nil {
		return nil, err
	}
	turn, err := e.lifecycle.OpenTurn(ctx, sess, nil)
	if err != nil {
		return nil, err
	}

	msg := &types.Message{
		SenderID:    in.SenderID,
		Role:        in.Role,
		ContentType: in.ContentType,
		Content:     in.Content,
		Metadata:    in.Metadata,
	}
	if msg.Role == "" {
		msg.Role = types.RoleHuman
	}
	if msg.ContentType == "" {
		msg.ContentType = types.ContentText
	}
	if err := e.lifecycle.AppendMessage(ctx, turn, msg); err != nil {
		return nil, err
	}

	text, err := e.parseMessage(ctx, msg)
	if err != nil {
		return nil, err
	}

	ex := &router.Exchange{
		Dialogue: d,
		Session:  sess,
		Turn:     turn,
		Message:  msg,
		Text:     text,
	}
	out, err := e.router.Route(d.Type).Handle(ctx, ex)
	if err != nil {
		return nil, err
	}

	// Delivery counts as the response for relay topologies; generated
	// replies were appended inside the handler. Either way the exchange is
	// complete, so the turn moves to responded with its close time stamped.
	if err := e.lifecycle.MarkResponded(ctx, turn); err != nil {
		return nil, err
	}
	return out, nil
}

// parseMessage normalizes the inbound content and folds the parser's
// annotations into the stored message. A content type nobody can parse is
// degraded to the raw content rather than failing the exchange.
func (e *Engine) parseMessage(ctx context.Context, msg *types.Message) (string, error) {
	summary, err := e.parsers.Parse(ctx, msg)
	if err != nil {
		if errors.Is(err, types.ErrCapability) {
			e.logger.Warn("no parser for content type, using raw content",
				zap.String("content_type", string(msg.ContentType)))
			return msg.Content, nil
		}
		return "", fmt.Errorf("parse message: %w", err)
	}

	if len(summary.Annotations) > 0 || len(summary.Tags) > 0 || len(summary.Emotions) > 0 {
		if msg.Metadata == nil {
			msg.Metadata = make(map[string]any, len(summary.Annotations)+2)
		}
		for k, v := range summary.Annotations {
			msg.Metadata[k] = v
		}
		if len(summary.Tags) > 0 {
			msg.Metadata["tags"] = summary.Tags
		}
		if len(summary.Emotions) > 0 {
			msg.Metadata["emotions"] = summary.Emotions
		}
		if err := e.stores.Messages.Update(ctx, msg); err != nil {
			return "", fmt.Errorf("store annotations: %w", err)
		}
	}
	return summary.Text, nil
}

// GenerateReply implements router.Pipeline: assemble the prompt, run the
// generation loop with streaming pushed to subscribers, shape the text, and
// persist the agent's message into the turn.
func (e *Engine) GenerateReply(ctx context.Context, ex *router.Exchange, opts router.GenOpts) (*types.Message, error) {
	history, err := e.stores.Messages.ByDialogue(ctx, ex.Dialogue.ID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	// The current message is already persisted; keep it out of history.
	trimmed := history[:0]
	for _, m := range history {
		if m.ID != ex.Message.ID {
			trimmed = append(trimmed, m)
		}
	}

	messages, err := e.assembler.Build(&prompt.Input{
		Dialogue:    ex.Dialogue,
		Session:     ex.Session,
		History:     trimmed,
		Current:     ex.Message,
		CurrentText: ex.Text,
		ToolNames:   e.tools.Names(),
		Memory:      types.MetaStrings(ex.Dialogue.Metadata, "memory"),
		Environment: types.MetaString(ex.Dialogue.Metadata, "environment"),
		Persona:     opts.Persona,
	})
	if err != nil {
		return nil, err
	}

	res, err := e.loop.Run(ctx, messages, generate.Options{
		OnDelta: func(u generate.StreamUpdate) {
			e.hub.Publish(ctx, push.StreamFrame(ex.Dialogue.ID, ex.Turn.ID, u.Text, u.Done))
		},
	})
	if err != nil {
		return nil, err
	}

	// The detected emotion of the inbound message shapes the reply; a
	// dialogue-level emotion setting is only the fallback.
	emotion := types.MetaString(ex.Dialogue.Metadata, "emotion")
	if labels := types.MetaStrings(ex.Message.Metadata, "emotions"); len(labels) > 0 {
		emotion = labels[0]
	}
	composed := e.composer.Compose(res.Text, &compose.Context{
		Dialogue:  ex.Dialogue,
		Emotion:   emotion,
		Formality: types.MetaString(ex.Dialogue.Metadata, "formality"),
	})

	meta := composed.Provenance()
	meta["generation_rounds"] = res.Rounds
	if res.Degraded {
		meta["degraded"] = true
	}
	if len(res.Invocations) > 0 {
		meta["tool_invocations"] = res.Invocations
	}

	reply := &types.Message{
		SenderID:    e.agentID(ex.Dialogue),
		Role:        types.RoleAI,
		ContentType: types.ContentText,
		Content:     composed.Content,
		Metadata:    meta,
	}
	if err := e.lifecycle.AppendMessage(ctx, ex.Turn, reply); err != nil {
		return nil, err
	}

	e.hub.Publish(ctx, push.NewMessageFrame(reply))
	return reply, nil
}

// Relay implements router.Pipeline: one push frame fans the message out to
// its recipients. No generation happens.
func (e *Engine) Relay(ctx context.Context, ex *router.Exchange, recipients []string) error {
	e.hub.Publish(ctx, push.RelayFrame(ex.Message, recipients))
	return nil
}

func (e *Engine) agentID(d *types.Dialogue) string {
	if id := types.MetaString(d.Metadata, "agent_id"); id != "" {
		return id
	}
	return "agent"
}

func (e *Engine) acquire(id types.DialogueID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[id]; busy {
		return fmt.Errorf("dialogue %s already has an exchange in flight: %w",
			id, types.ErrConflictInFlight)
	}
	e.inFlight[id] = struct{}{}
	return nil
}

func (e *Engine) release(id types.DialogueID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, id)
}
