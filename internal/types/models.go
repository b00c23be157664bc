// internal/types/models.go
package types

import (
	"time"
)

// Dialogue is the top-level container: one conversation topology plus its
// participant roster. Sessions hang off it in creation order.
type Dialogue struct {
	ID             DialogueID     `json:"id"`
	Type           DialogueType   `json:"dialogue_type"`
	Title          string         `json:"title,omitempty"`
	Description    string         `json:"description,omitempty"`
	Participants   []string       `json:"participants"`
	Sessions       []SessionID    `json:"sessions"`
	CreatedAt      time.Time      `json:"created_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
	IsActive       bool           `json:"is_active"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Session is a bounded interaction episode inside a dialogue.
type Session struct {
	ID         SessionID      `json:"id"`
	DialogueID DialogueID     `json:"dialogue_id"`
	Type       SessionType    `json:"session_type"`
	Turns      []TurnID       `json:"turns"`
	StartedAt  time.Time      `json:"started_at"`
	ClosedAt   *time.Time     `json:"closed_at,omitempty"`
	IsActive   bool           `json:"is_active"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Turn groups the messages of one exchange. ResponseTime is set when the
// turn moves to responded.
type Turn struct {
	ID           TurnID         `json:"id"`
	SessionID    SessionID      `json:"session_id"`
	DialogueID   DialogueID     `json:"dialogue_id"`
	Status       TurnStatus     `json:"status"`
	Messages     []MessageID    `json:"messages"`
	StartedAt    time.Time      `json:"started_at"`
	RespondedAt  *time.Time     `json:"responded_at,omitempty"`
	ClosedAt     *time.Time     `json:"closed_at,omitempty"`
	ResponseTime time.Duration  `json:"response_time,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Message is a single utterance. Metadata carries parser annotations,
// composition provenance, and tool invocation records.
type Message struct {
	ID          MessageID      `json:"id"`
	TurnID      TurnID         `json:"turn_id"`
	SessionID   SessionID      `json:"session_id"`
	DialogueID  DialogueID     `json:"dialogue_id"`
	SenderID    string         `json:"sender_id"`
	Role        Role           `json:"role"`
	ContentType ContentType    `json:"content_type"`
	Content     string         `json:"content"`
	CreatedAt   time.Time      `json:"created_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Inbound is what callers hand the engine: raw content addressed to a
// dialogue, before any turn bookkeeping exists for it.
type Inbound struct {
	DialogueID  DialogueID     `json:"dialogue_id"`
	SenderID    string         `json:"sender_id"`
	Role        Role           `json:"role"`
	ContentType ContentType    `json:"content_type"`
	Content     string         `json:"content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// MetaString reads a string field out of an entity metadata map, tolerating
// a nil map.
func MetaString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// MetaStrings reads a list-of-strings field out of a metadata map. JSON
// decoding yields []any, so both shapes are accepted.
func MetaStrings(m map[string]any, key string) []string {
	if m == nil {
		return nil
	}
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
