// internal/router/handlers.go
package router

import (
	"context"
	"fmt"

	"github.com/rainbowcity/dialogue/internal/prompt"
	"github.com/rainbowcity/dialogue/internal/types"
)

// humanAIHandler is the classic one-human-one-agent topology and the
// fallback for unknown tags. Every inbound message gets a generated reply.
type humanAIHandler struct {
	pipeline Pipeline
}

func (h *humanAIHandler) Type() types.DialogueType { return types.DialogueHumanAI }

func (h *humanAIHandler) Handle(ctx context.Context, ex *Exchange) (*Outcome, error) {
	reply, err := h.pipeline.GenerateReply(ctx, ex, GenOpts{})
	if err != nil {
		return nil, err
	}
	return &Outcome{Reply: reply}, nil
}

// aiSelfHandler runs introspection dialogues where the agent talks to
// itself. Same pipeline as human/AI but under the reflective persona.
type aiSelfHandler struct {
	pipeline Pipeline
}

func (h *aiSelfHandler) Type() types.DialogueType { return types.DialogueAISelf }

func (h *aiSelfHandler) Handle(ctx context.Context, ex *Exchange) (*Outcome, error) {
	reply, err := h.pipeline.GenerateReply(ctx, ex, GenOpts{Persona: prompt.IntrospectionPersona})
	if err != nil {
		return nil, err
	}
	return &Outcome{Reply: reply}, nil
}

// aiAIHandler serves agent-to-agent dialogues. The local agent answers
// the peer agent's message under the peer persona.
type aiAIHandler struct {
	pipeline Pipeline
}

func (h *aiAIHandler) Type() types.DialogueType { return types.DialogueAIAI }

func (h *aiAIHandler) Handle(ctx context.Context, ex *Exchange) (*Outcome, error) {
	if len(types.MetaStrings(ex.Dialogue.Metadata, "participant_ai_ids")) == 0 {
		return nil, fmt.Errorf("agent dialogue %s has no participant agents: %w",
			ex.Dialogue.ID, types.ErrPrecondition)
	}
	reply, err := h.pipeline.GenerateReply(ctx, ex, GenOpts{Persona: prompt.PeerAgentPersona})
	if err != nil {
		return nil, err
	}
	return &Outcome{Reply: reply}, nil
}

// humanHumanPrivateHandler relays between exactly two humans. No
// generation happens; the message is pushed to the one other participant.
type humanHumanPrivateHandler struct {
	pipeline Pipeline
}

func (h *humanHumanPrivateHandler) Type() types.DialogueType {
	return types.DialogueHumanHumanPrivate
}

func (h *humanHumanPrivateHandler) Handle(ctx context.Context, ex *Exchange) (*Outcome, error) {
	recipients := exclude(ex.Dialogue.Participants, ex.Sender())
	if len(recipients) != 1 {
		return nil, fmt.Errorf("private dialogue %s needs exactly one counterpart, found %d: %w",
			ex.Dialogue.ID, len(recipients), types.ErrPrecondition)
	}
	if err := h.pipeline.Relay(ctx, ex, recipients); err != nil {
		return nil, err
	}
	return &Outcome{Relayed: recipients}, nil
}

// humanHumanGroupHandler fans a message out to every group member except
// its sender.
type humanHumanGroupHandler struct {
	pipeline Pipeline
}

func (h *humanHumanGroupHandler) Type() types.DialogueType {
	return types.DialogueHumanHumanGroup
}

func (h *humanHumanGroupHandler) Handle(ctx context.Context, ex *Exchange) (*Outcome, error) {
	members := types.MetaStrings(ex.Dialogue.Metadata, "group_members")
	if len(members) == 0 {
		members = ex.Dialogue.Participants
	}
	recipients := exclude(members, ex.Sender())
	if err := h.pipeline.Relay(ctx, ex, recipients); err != nil {
		return nil, err
	}
	return &Outcome{Relayed: recipients}, nil
}

// humanAIGroupHandler covers mixed groups with humans and agents. A human
// message is relayed to the other human members and the agent answers in
// the same turn; an agent's own message is broadcast to the humans without
// triggering another generation.
type humanAIGroupHandler struct {
	pipeline Pipeline
}

func (h *humanAIGroupHandler) Type() types.DialogueType { return types.DialogueHumanAIGroup }

func (h *humanAIGroupHandler) Handle(ctx context.Context, ex *Exchange) (*Outcome, error) {
	recipients := exclude(types.MetaStrings(ex.Dialogue.Metadata, "human_members"), ex.Sender())
	if len(recipients) > 0 {
		if err := h.pipeline.Relay(ctx, ex, recipients); err != nil {
			return nil, err
		}
	}
	if ex.Message.Role == types.RoleAI {
		return &Outcome{Relayed: recipients}, nil
	}
	reply, err := h.pipeline.GenerateReply(ctx, ex, GenOpts{Persona: prompt.GroupPersona})
	if err != nil {
		return nil, err
	}
	return &Outcome{Reply: reply, Relayed: recipients}, nil
}

// aiMultiHumanHandler serves one agent hosting several humans. A human
// message reaches the other humans and the host replies; a message from the
// host itself only fans out to the humans.
type aiMultiHumanHandler struct {
	pipeline Pipeline
}

func (h *aiMultiHumanHandler) Type() types.DialogueType { return types.DialogueAIMultiHuman }

func (h *aiMultiHumanHandler) Handle(ctx context.Context, ex *Exchange) (*Outcome, error) {
	recipients := exclude(types.MetaStrings(ex.Dialogue.Metadata, "human_participants"), ex.Sender())
	if len(recipients) > 0 {
		if err := h.pipeline.Relay(ctx, ex, recipients); err != nil {
			return nil, err
		}
	}
	if ex.Message.Role == types.RoleAI {
		return &Outcome{Relayed: recipients}, nil
	}
	reply, err := h.pipeline.GenerateReply(ctx, ex, GenOpts{Persona: prompt.GroupPersona})
	if err != nil {
		return nil, err
	}
	return &Outcome{Reply: reply, Relayed: recipients}, nil
}

func exclude(ids []string, sender string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != sender {
			out = append(out, id)
		}
	}
	return out
}
