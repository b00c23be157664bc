// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type DialogueID string
type SessionID string
type TurnID string
type MessageID string

func NewDialogueID() DialogueID {
	return DialogueID(uuid.New().String())
}

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

func NewTurnID() TurnID {
	return TurnID(uuid.New().String())
}

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}
