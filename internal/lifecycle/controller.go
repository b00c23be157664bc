// internal/lifecycle/controller.go
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rainbowcity/dialogue/internal/telemetry"
	"github.com/rainbowcity/dialogue/internal/types"
)

// Controller owns the bookkeeping of the layered state model: which session
// of a dialogue is live, which turn is open, and how turns move through
// their lifecycle. All writes go through the stores; the controller holds
// no state of its own.
type Controller struct {
	stores types.Stores
	logger *zap.Logger
}

func New(stores types.Stores, logger *zap.Logger) *Controller {
	return &Controller{
		stores: stores,
		logger: telemetry.Component(logger, "lifecycle"),
	}
}

// ActiveSession returns the dialogue's current session, creating one when
// none is active. Session type follows the dialogue topology.
func (c *Controller) ActiveSession(ctx context.Context, d *types.Dialogue) (*types.Session, error) {
	sessions, err := c.stores.Sessions.ByDialogue(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	for i := len(sessions) - 1; i >= 0; i-- {
		if sessions[i].IsActive {
			return sessions[i], nil
		}
	}
	return c.OpenSession(ctx, d)
}

// OpenSession starts a fresh session on the dialogue.
func (c *Controller) OpenSession(ctx context.Context, d *types.Dialogue) (*types.Session, error) {
	sess := &types.Session{
		ID:         types.NewSessionID(),
		DialogueID: d.ID,
		Type:       types.SessionTypeFor(d.Type),
		StartedAt:  time.Now(),
		IsActive:   true,
	}
	if err := c.stores.Sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	d.Sessions = append(d.Sessions, sess.ID)
	d.LastActivityAt = time.Now()
	if err := c.stores.Dialogues.Update(ctx, d); err != nil {
		return nil, fmt.Errorf("attach session: %w", err)
	}

	c.logger.Info("session opened",
		zap.String("dialogue_id", string(d.ID)),
		zap.String("session_id", string(sess.ID)),
		zap.String("session_type", string(sess.Type)))
	return sess, nil
}

// CloseSession ends a session. Open turns inside it are closed too.
func (c *Controller) CloseSession(ctx context.Context, sess *types.Session) error {
	if !sess.IsActive {
		return fmt.Errorf("session %s already closed: %w", sess.ID, types.ErrPrecondition)
	}

	turns, err := c.stores.Turns.BySession(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("list turns: %w", err)
	}
	for _, t := range turns {
		if t.Status == types.TurnClosed {
			continue
		}
		if err := c.CloseTurn(ctx, t); err != nil {
			return err
		}
	}

	now := time.Now()
	sess.IsActive = false
	sess.ClosedAt = &now
	if err := c.stores.Sessions.Update(ctx, sess); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

// OpenTurn starts a new turn in the session.
func (c *Controller) OpenTurn(ctx context.Context, sess *types.Session, metadata map[string]any) (*types.Turn, error) {
	turn := &types.Turn{
		ID:         types.NewTurnID(),
		SessionID:  sess.ID,
		DialogueID: sess.DialogueID,
		Status:     types.TurnOpen,
		StartedAt:  time.Now(),
		Metadata:   metadata,
	}
	if err := c.stores.Turns.Create(ctx, turn); err != nil {
		return nil, fmt.Errorf("create turn: %w", err)
	}

	sess.Turns = append(sess.Turns, turn.ID)
	if err := c.stores.Sessions.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("attach turn: %w", err)
	}
	return turn, nil
}

// AppendMessage persists a message into a turn and bumps the dialogue's
// activity clock.
func (c *Controller) AppendMessage(ctx context.Context, turn *types.Turn, msg *types.Message) error {
	if turn.Status == types.TurnClosed {
		return fmt.Errorf("turn %s is closed: %w", turn.ID, types.ErrPrecondition)
	}

	if msg.ID == "" {
		msg.ID = types.NewMessageID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.TurnID = turn.ID
	msg.SessionID = turn.SessionID
	msg.DialogueID = turn.DialogueID

	if err := c.stores.Messages.Create(ctx, msg); err != nil {
		return fmt.Errorf("create message: %w", err)
	}

	turn.Messages = append(turn.Messages, msg.ID)
	if err := c.stores.Turns.Update(ctx, turn); err != nil {
		return fmt.Errorf("attach message: %w", err)
	}

	d, err := c.stores.Dialogues.Get(ctx, turn.DialogueID)
	if err != nil {
		return fmt.Errorf("load dialogue: %w", err)
	}
	d.LastActivityAt = time.Now()
	if err := c.stores.Dialogues.Update(ctx, d); err != nil {
		return fmt.Errorf("bump activity: %w", err)
	}
	return nil
}

// Transition moves a turn to the next status, enforcing the lifecycle.
func (c *Controller) Transition(ctx context.Context, turn *types.Turn, next types.TurnStatus) error {
	if !turn.Status.CanTransition(next) {
		return fmt.Errorf("turn %s cannot move %s -> %s: %w",
			turn.ID, turn.Status, next, types.ErrPrecondition)
	}

	now := time.Now()
	switch next {
	case types.TurnResponded:
		// Responded completes the exchange: ClosedAt is stamped here and the
		// status stays responded. The closed status is reserved for session
		// and dialogue shutdown.
		turn.RespondedAt = &now
		turn.ResponseTime = now.Sub(turn.StartedAt)
		turn.ClosedAt = &now
	case types.TurnClosed:
		turn.ClosedAt = &now
	}
	prev := turn.Status
	turn.Status = next

	if err := c.stores.Turns.Update(ctx, turn); err != nil {
		turn.Status = prev
		return fmt.Errorf("update turn: %w", err)
	}
	return nil
}

// MarkResponded records the reply on an open or unresponded turn.
func (c *Controller) MarkResponded(ctx context.Context, turn *types.Turn) error {
	return c.Transition(ctx, turn, types.TurnResponded)
}

// MarkUnresponded is what the response-window sweeper applies to stale
// open turns.
func (c *Controller) MarkUnresponded(ctx context.Context, turn *types.Turn) error {
	return c.Transition(ctx, turn, types.TurnUnresponded)
}

// CloseTurn terminates a turn from any non-closed state.
func (c *Controller) CloseTurn(ctx context.Context, turn *types.Turn) error {
	return c.Transition(ctx, turn, types.TurnClosed)
}
