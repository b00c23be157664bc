// internal/push/frames.go
package push

import (
	"github.com/rainbowcity/dialogue/internal/types"
)

type FrameType string

const (
	FrameNewMessage     FrameType = "new_message"
	FrameDialogueUpdate FrameType = "dialogue_update"
	FrameStreamResponse FrameType = "stream_response"
)

// Frame is one push payload addressed to everyone watching a dialogue.
type Frame struct {
	Type       FrameType        `json:"type"`
	DialogueID types.DialogueID `json:"dialogue_id"`
	Payload    any              `json:"payload"`
}

// NewMessageFrame announces a persisted message.
func NewMessageFrame(m *types.Message) Frame {
	return Frame{
		Type:       FrameNewMessage,
		DialogueID: m.DialogueID,
		Payload:    m,
	}
}

// RelayFrame announces a relayed message together with the participants it
// was addressed to, for relay topologies where not every member is a
// recipient.
func RelayFrame(m *types.Message, recipients []string) Frame {
	return Frame{
		Type:       FrameNewMessage,
		DialogueID: m.DialogueID,
		Payload: map[string]any{
			"message":    m,
			"recipients": recipients,
		},
	}
}

// DialogueUpdateFrame announces a dialogue state change such as creation or
// closure. event names the change.
func DialogueUpdateFrame(d *types.Dialogue, event string) Frame {
	return Frame{
		Type:       FrameDialogueUpdate,
		DialogueID: d.ID,
		Payload: map[string]any{
			"event":    event,
			"dialogue": d,
		},
	}
}

// StreamPayload is the body of a stream_response frame.
type StreamPayload struct {
	TurnID     types.TurnID `json:"turn_id"`
	Content    string       `json:"content"`
	IsComplete bool         `json:"is_complete"`
}

// StreamFrame carries one partial accumulation of a response being
// generated. Content is cumulative; IsComplete marks the final frame.
func StreamFrame(dialogueID types.DialogueID, turnID types.TurnID, content string, isComplete bool) Frame {
	return Frame{
		Type:       FrameStreamResponse,
		DialogueID: dialogueID,
		Payload: StreamPayload{
			TurnID:     turnID,
			Content:    content,
			IsComplete: isComplete,
		},
	}
}
