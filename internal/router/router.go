// internal/router/router.go
package router

import (
	"context"

	"go.uber.org/zap"

	"github.com/rainbowcity/dialogue/internal/telemetry"
	"github.com/rainbowcity/dialogue/internal/types"
)

// Exchange is one inbound message with its resolved conversational context.
type Exchange struct {
	Dialogue *types.Dialogue
	Session  *types.Session
	Turn     *types.Turn
	Message  *types.Message
	// Text is the parsed, normalized form of the message content.
	Text string
}

// Sender returns the exchange's sender ID.
func (ex *Exchange) Sender() string {
	return ex.Message.SenderID
}

// GenOpts tunes one generated reply.
type GenOpts struct {
	// Persona overrides the topology default when non-empty.
	Persona string
}

// Pipeline is what handlers drive: generating an agent reply into the
// exchange's turn, or relaying the message to other participants. The
// orchestration engine implements it.
type Pipeline interface {
	GenerateReply(ctx context.Context, ex *Exchange, opts GenOpts) (*types.Message, error)
	Relay(ctx context.Context, ex *Exchange, recipients []string) error
}

// Outcome reports what a handler did with an exchange.
type Outcome struct {
	// Reply is the generated agent message, nil for pure relay
	// topologies.
	Reply *types.Message
	// Relayed lists the recipients the message was fanned out to.
	Relayed []string
}

// Handler processes exchanges for one dialogue topology.
type Handler interface {
	Type() types.DialogueType
	Handle(ctx context.Context, ex *Exchange) (*Outcome, error)
}

// Router dispatches exchanges to the handler for their dialogue type.
// The set of handlers is closed: every known topology gets exactly one,
// and unknown tags fall back to the human/AI handler.
type Router struct {
	handlers map[types.DialogueType]Handler
	fallback Handler
	logger   *zap.Logger
	metrics  *telemetry.Metrics
}

// New builds the router with the full handler set wired to the pipeline.
func New(p Pipeline, logger *zap.Logger, metrics *telemetry.Metrics) *Router {
	if metrics == nil {
		metrics = telemetry.NewNopMetrics()
	}
	r := &Router{
		handlers: make(map[types.DialogueType]Handler),
		logger:   telemetry.Component(logger, "router"),
		metrics:  metrics,
	}

	defaults := []Handler{
		&humanAIHandler{p},
		&aiSelfHandler{p},
		&aiAIHandler{p},
		&humanHumanPrivateHandler{p},
		&humanHumanGroupHandler{p},
		&humanAIGroupHandler{p},
		&aiMultiHumanHandler{p},
	}
	for _, h := range defaults {
		r.handlers[h.Type()] = h
	}
	r.fallback = r.handlers[types.DialogueHumanAI]
	return r
}

// Route returns the handler for the tag. An unknown tag is an anomaly:
// it is counted, logged, and served by the fallback handler so the message
// still gets an answer.
func (r *Router) Route(t types.DialogueType) Handler {
	if h, ok := r.handlers[t]; ok {
		return h
	}
	r.metrics.RouterFallbacks.Inc()
	r.logger.Warn("unknown dialogue type, using fallback",
		zap.String("dialogue_type", string(t)))
	return r.fallback
}
