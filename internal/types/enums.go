// internal/types/enums.go
package types

// DialogueType tags the participant topology of a dialogue. Every other
// behavior in the system (session type, routing strategy, broadcast fan-out)
// derives from this tag.
type DialogueType string

const (
	DialogueHumanAI           DialogueType = "human_ai"
	DialogueAISelf            DialogueType = "ai_self"
	DialogueAIAI              DialogueType = "ai_ai"
	DialogueHumanHumanPrivate DialogueType = "human_human_private"
	DialogueHumanHumanGroup   DialogueType = "human_human_group"
	DialogueHumanAIGroup      DialogueType = "human_ai_group"
	DialogueAIMultiHuman      DialogueType = "ai_multi_human"
)

// KnownDialogueTypes lists every recognized topology, in declaration order.
var KnownDialogueTypes = []DialogueType{
	DialogueHumanAI,
	DialogueAISelf,
	DialogueAIAI,
	DialogueHumanHumanPrivate,
	DialogueHumanHumanGroup,
	DialogueHumanAIGroup,
	DialogueAIMultiHuman,
}

func (t DialogueType) Known() bool {
	for _, k := range KnownDialogueTypes {
		if t == k {
			return true
		}
	}
	return false
}

type SessionType string

const (
	SessionDialogue      SessionType = "dialogue"
	SessionIntrospection SessionType = "introspection"
	SessionMultiAgent    SessionType = "multi_agent"
	SessionGroupChat     SessionType = "group_chat"
	SessionMixedGroup    SessionType = "mixed_group"
)

// SessionTypeFor maps a dialogue topology to the session type its sessions
// are created with. Unknown tags fall back to the plain dialogue session.
func SessionTypeFor(t DialogueType) SessionType {
	switch t {
	case DialogueAISelf:
		return SessionIntrospection
	case DialogueAIAI:
		return SessionMultiAgent
	case DialogueHumanHumanGroup, DialogueHumanHumanPrivate:
		return SessionGroupChat
	case DialogueHumanAIGroup, DialogueAIMultiHuman:
		return SessionMixedGroup
	default:
		return SessionDialogue
	}
}

// TurnStatus is the lifecycle state of a turn.
//
//	open        → responded | unresponded | closed
//	responded   → closed
//	unresponded → responded | closed
//	closed      (terminal)
type TurnStatus string

const (
	TurnOpen        TurnStatus = "open"
	TurnResponded   TurnStatus = "responded"
	TurnUnresponded TurnStatus = "unresponded"
	TurnClosed      TurnStatus = "closed"
)

// CanTransition reports whether the lifecycle permits moving from s to next.
func (s TurnStatus) CanTransition(next TurnStatus) bool {
	switch s {
	case TurnOpen:
		return next == TurnResponded || next == TurnUnresponded || next == TurnClosed
	case TurnResponded:
		return next == TurnClosed
	case TurnUnresponded:
		return next == TurnResponded || next == TurnClosed
	default:
		return false
	}
}

type Role string

const (
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
	RoleSystem Role = "system"
	RoleTool   Role = "tool"
)

type ContentType string

const (
	ContentText       ContentType = "text"
	ContentImage      ContentType = "image"
	ContentAudio      ContentType = "audio"
	ContentToolOutput ContentType = "tool_output"
	ContentPrompt     ContentType = "prompt"
)
