// internal/prompt/persona.go
package prompt

import (
	"github.com/rainbowcity/dialogue/internal/types"
)

const (
	// DefaultPersona is the conversational baseline for human-facing
	// dialogue.
	DefaultPersona = `You are a thoughtful conversational agent. Answer the current message directly, keeping the dialogue history in mind. Be concise; do not pad responses with filler, and do not repeat the question back.`

	// IntrospectionPersona drives self-dialogue sessions: the model talks
	// to its own prior output rather than to a person.
	IntrospectionPersona = `You are in a private reflection session. The messages you see are your own earlier thoughts. Continue the line of reasoning: question assumptions, note contradictions, and end with what you now believe and why.`

	// PeerAgentPersona drives agent-to-agent dialogue.
	PeerAgentPersona = `You are one of several autonomous agents in a working conversation. Respond to your peer's last message with your own position. Be substantive and brief; agreement without reasons is not a contribution.`

	// GroupPersona drives mixed groups where several humans are present.
	GroupPersona = `You are an assistant participating in a group conversation. Multiple people are present; messages are prefixed with the sender's name. Address the person who spoke last unless the message concerns the whole group. Stay brief so the humans keep the floor.`
)

// PersonaFor picks the persona implied by the dialogue topology.
func PersonaFor(d *types.Dialogue) string {
	if d == nil {
		return DefaultPersona
	}
	switch d.Type {
	case types.DialogueAISelf:
		return IntrospectionPersona
	case types.DialogueAIAI:
		return PeerAgentPersona
	case types.DialogueHumanAIGroup, types.DialogueAIMultiHuman:
		return GroupPersona
	default:
		return DefaultPersona
	}
}
