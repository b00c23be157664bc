// internal/types/interfaces.go
package types

import (
	"context"
)

// DialogueStore persists dialogues. Listing methods return dialogues in
// creation order.
type DialogueStore interface {
	Create(ctx context.Context, d *Dialogue) error
	Get(ctx context.Context, id DialogueID) (*Dialogue, error)
	Update(ctx context.Context, d *Dialogue) error
	Delete(ctx context.Context, id DialogueID) error
	List(ctx context.Context) ([]*Dialogue, error)
	Active(ctx context.Context) ([]*Dialogue, error)
}

type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id SessionID) (*Session, error)
	Update(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id SessionID) error
	ByDialogue(ctx context.Context, id DialogueID) ([]*Session, error)
}

type TurnStore interface {
	Create(ctx context.Context, t *Turn) error
	Get(ctx context.Context, id TurnID) (*Turn, error)
	Update(ctx context.Context, t *Turn) error
	Delete(ctx context.Context, id TurnID) error
	BySession(ctx context.Context, id SessionID) ([]*Turn, error)
	// Open returns every turn still in the open state, across dialogues.
	// The response-window sweeper scans this.
	Open(ctx context.Context) ([]*Turn, error)
}

type MessageStore interface {
	Create(ctx context.Context, m *Message) error
	Get(ctx context.Context, id MessageID) (*Message, error)
	Update(ctx context.Context, m *Message) error
	Delete(ctx context.Context, id MessageID) error
	ByTurn(ctx context.Context, id TurnID) ([]*Message, error)
	// ByDialogue returns up to limit most recent messages for the
	// dialogue, oldest first. limit <= 0 means no cap.
	ByDialogue(ctx context.Context, id DialogueID, limit int) ([]*Message, error)
}

// Stores bundles the four repositories most components need together.
type Stores struct {
	Dialogues DialogueStore
	Sessions  SessionStore
	Turns     TurnStore
	Messages  MessageStore
}
