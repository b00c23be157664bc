// internal/engine/create.go
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rainbowcity/dialogue/internal/push"
	"github.com/rainbowcity/dialogue/internal/types"
)

// CreateInput carries the optional fields shared by every dialogue
// constructor.
type CreateInput struct {
	Title       string
	Description string
	Metadata    map[string]any
}

// CreateHumanAI opens a one-human-one-agent dialogue.
func (e *Engine) CreateHumanAI(ctx context.Context, humanID, agentID string, in CreateInput) (*types.Dialogue, error) {
	if humanID == "" || agentID == "" {
		return nil, fmt.Errorf("human and agent IDs are required: %w", types.ErrPrecondition)
	}
	meta := mergeMeta(in.Metadata, map[string]any{"agent_id": agentID})
	return e.createDialogue(ctx, types.DialogueHumanAI, []string{humanID, agentID}, in, meta)
}

// CreateAISelf opens an introspection dialogue where the agent is the only
// participant.
func (e *Engine) CreateAISelf(ctx context.Context, agentID string, in CreateInput) (*types.Dialogue, error) {
	if agentID == "" {
		return nil, fmt.Errorf("agent ID is required: %w", types.ErrPrecondition)
	}
	meta := mergeMeta(in.Metadata, map[string]any{"agent_id": agentID})
	return e.createDialogue(ctx, types.DialogueAISelf, []string{agentID}, in, meta)
}

// CreateAIAI opens an agent-to-agent dialogue between two or more agents.
func (e *Engine) CreateAIAI(ctx context.Context, agentIDs []string, in CreateInput) (*types.Dialogue, error) {
	if len(agentIDs) < 2 {
		return nil, fmt.Errorf("agent dialogue needs at least 2 agents, got %d: %w",
			len(agentIDs), types.ErrPrecondition)
	}
	meta := mergeMeta(in.Metadata, map[string]any{
		"participant_ai_ids": agentIDs,
		"agent_id":           agentIDs[0],
	})
	return e.createDialogue(ctx, types.DialogueAIAI, agentIDs, in, meta)
}

// CreateHumanHumanPrivate opens a two-human relay dialogue.
func (e *Engine) CreateHumanHumanPrivate(ctx context.Context, firstID, secondID string, in CreateInput) (*types.Dialogue, error) {
	if firstID == "" || secondID == "" {
		return nil, fmt.Errorf("both participant IDs are required: %w", types.ErrPrecondition)
	}
	if firstID == secondID {
		return nil, fmt.Errorf("private dialogue needs two distinct humans: %w", types.ErrPrecondition)
	}
	meta := mergeMeta(in.Metadata, map[string]any{"second_human_id": secondID})
	return e.createDialogue(ctx, types.DialogueHumanHumanPrivate, []string{firstID, secondID}, in, meta)
}

// CreateHumanHumanGroup opens a humans-only group relay dialogue.
func (e *Engine) CreateHumanHumanGroup(ctx context.Context, members []string, in CreateInput) (*types.Dialogue, error) {
	if len(members) < 2 {
		return nil, fmt.Errorf("group dialogue needs at least 2 members, got %d: %w",
			len(members), types.ErrPrecondition)
	}
	meta := mergeMeta(in.Metadata, map[string]any{"group_members": members})
	return e.createDialogue(ctx, types.DialogueHumanHumanGroup, members, in, meta)
}

// CreateHumanAIGroup opens a mixed group with at least one human and one
// agent member.
func (e *Engine) CreateHumanAIGroup(ctx context.Context, humans, agents []string, in CreateInput) (*types.Dialogue, error) {
	if len(humans) < 1 || len(agents) < 1 {
		return nil, fmt.Errorf("mixed group needs at least one human and one agent: %w",
			types.ErrPrecondition)
	}
	meta := mergeMeta(in.Metadata, map[string]any{
		"human_members": humans,
		"ai_members":    agents,
		"agent_id":      agents[0],
	})
	participants := append(append([]string{}, humans...), agents...)
	return e.createDialogue(ctx, types.DialogueHumanAIGroup, participants, in, meta)
}

// CreateAIMultiHuman opens a dialogue where one agent hosts several humans.
func (e *Engine) CreateAIMultiHuman(ctx context.Context, agentID string, humans []string, in CreateInput) (*types.Dialogue, error) {
	if agentID == "" {
		return nil, fmt.Errorf("host agent ID is required: %w", types.ErrPrecondition)
	}
	if len(humans) < 1 {
		return nil, fmt.Errorf("host dialogue needs at least one human: %w", types.ErrPrecondition)
	}
	meta := mergeMeta(in.Metadata, map[string]any{
		"human_participants": humans,
		"agent_id":           agentID,
	})
	participants := append([]string{agentID}, humans...)
	return e.createDialogue(ctx, types.DialogueAIMultiHuman, participants, in, meta)
}

// createDialogue persists the dialogue, opens its first session, and
// announces the creation. Validation happens in the typed constructors
// before anything is written.
func (e *Engine) createDialogue(ctx context.Context, dt types.DialogueType, participants []string, in CreateInput, meta map[string]any) (*types.Dialogue, error) {
	now := time.Now()
	d := &types.Dialogue{
		ID:             types.NewDialogueID(),
		Type:           dt,
		Title:          in.Title,
		Description:    in.Description,
		Participants:   participants,
		CreatedAt:      now,
		LastActivityAt: now,
		IsActive:       true,
		Metadata:       meta,
	}
	if err := e.stores.Dialogues.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create dialogue: %w", err)
	}
	if _, err := e.lifecycle.OpenSession(ctx, d); err != nil {
		return nil, err
	}

	e.hub.Publish(ctx, push.DialogueUpdateFrame(d, "created"))
	e.logger.Info("dialogue created",
		zap.String("dialogue_id", string(d.ID)),
		zap.String("dialogue_type", string(dt)),
		zap.Int("participants", len(participants)))
	return d, nil
}

// CloseDialogue deactivates a dialogue and closes its active sessions.
func (e *Engine) CloseDialogue(ctx context.Context, id types.DialogueID) error {
	d, err := e.stores.Dialogues.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load dialogue: %w", err)
	}
	if !d.IsActive {
		return fmt.Errorf("dialogue %s already closed: %w", id, types.ErrPrecondition)
	}

	sessions, err := e.stores.Sessions.ByDialogue(ctx, id)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	for _, s := range sessions {
		if !s.IsActive {
			continue
		}
		if err := e.lifecycle.CloseSession(ctx, s); err != nil {
			return err
		}
	}

	d.IsActive = false
	if err := e.stores.Dialogues.Update(ctx, d); err != nil {
		return fmt.Errorf("close dialogue: %w", err)
	}
	e.hub.Publish(ctx, push.DialogueUpdateFrame(d, "closed"))
	return nil
}

func mergeMeta(user, system map[string]any) map[string]any {
	out := make(map[string]any, len(user)+len(system))
	for k, v := range user {
		out[k] = v
	}
	for k, v := range system {
		out[k] = v
	}
	return out
}
