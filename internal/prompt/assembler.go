// internal/prompt/assembler.go
package prompt

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/rainbowcity/dialogue/internal/types"
	"github.com/rainbowcity/dialogue/pkg/llm"
)

// Assembler builds token-budgeted prompts. The window is split as
// system + current input always included, then history filling at most 70%
// of what remains, newest first.
type Assembler struct {
	tokenizer *tiktoken.Tiktoken
	maxTokens int
	reserve   int
}

// New creates an assembler for the given model's tokenizer. maxTokens is the
// context window size; reserve is held back for the model's output.
func New(model string, maxTokens, reserve int) (*Assembler, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Assembler{
		tokenizer: enc,
		maxTokens: maxTokens,
		reserve:   reserve,
	}, nil
}

func (a *Assembler) countTokens(text string) int {
	return len(a.tokenizer.Encode(text, nil, nil))
}

// Input carries everything one prompt is assembled from.
type Input struct {
	Dialogue *types.Dialogue
	Session  *types.Session

	// History holds prior messages oldest first, excluding Current.
	History []*types.Message
	// Current is the message being responded to; CurrentText is its
	// parsed, normalized form.
	Current     *types.Message
	CurrentText string

	ToolNames   []string
	Memory      []string
	Environment string
	// Persona overrides the topology-derived persona when non-empty.
	Persona string
}

// Build assembles the prompt: one system message, the budget's worth of
// recent history, and the current input last. History is dropped whole
// messages at a time, oldest first.
func (a *Assembler) Build(in *Input) ([]llm.Message, error) {
	if in.Current == nil {
		return nil, fmt.Errorf("prompt input has no current message: %w", types.ErrPrecondition)
	}

	sysPrompt := a.systemPrompt(in)
	currentText := in.CurrentText
	if currentText == "" {
		currentText = in.Current.Content
	}
	current := llm.Message{Role: "user", Content: a.attributed(in, in.Current, currentText)}

	inputBudget := a.maxTokens - a.reserve
	remaining := inputBudget - a.countTokens(sysPrompt) - a.countTokens(current.Content)
	historyBudget := int(float64(remaining) * 0.7)

	// Walk history newest first so truncation sheds the oldest turns.
	var kept []llm.Message
	used := 0
	for i := len(in.History) - 1; i >= 0; i-- {
		msg := a.historyMessage(in, in.History[i])
		msgTokens := a.countTokens(msg.Content)
		if used+msgTokens > historyBudget {
			break
		}
		kept = append(kept, msg)
		used += msgTokens
	}

	messages := make([]llm.Message, 0, 2+len(kept))
	messages = append(messages, llm.Message{Role: "system", Content: sysPrompt})
	for i := len(kept) - 1; i >= 0; i-- {
		messages = append(messages, kept[i])
	}
	messages = append(messages, current)
	return messages, nil
}

// historyMessage maps a stored message into a chat message. AI output maps
// to the assistant role; everything else, tool output included, arrives as
// user-visible context.
func (a *Assembler) historyMessage(in *Input, m *types.Message) llm.Message {
	switch m.Role {
	case types.RoleAI:
		return llm.Message{Role: "assistant", Content: m.Content}
	case types.RoleTool:
		return llm.Message{Role: "user", Content: fmt.Sprintf("[tool output] %s", m.Content)}
	default:
		return llm.Message{Role: "user", Content: a.attributed(in, m, m.Content)}
	}
}

// attributed prefixes the sender in multi-party dialogues so the model can
// tell speakers apart.
func (a *Assembler) attributed(in *Input, m *types.Message, text string) string {
	if in.Dialogue == nil || len(in.Dialogue.Participants) <= 2 || m.SenderID == "" {
		return text
	}
	return fmt.Sprintf("%s: %s", m.SenderID, text)
}

func (a *Assembler) systemPrompt(in *Input) string {
	persona := in.Persona
	if persona == "" {
		persona = PersonaFor(in.Dialogue)
	}

	var b strings.Builder
	b.WriteString(persona)

	if in.Dialogue != nil {
		fmt.Fprintf(&b, "\n\nDialogue: %s", in.Dialogue.ID)
		if in.Dialogue.Title != "" {
			fmt.Fprintf(&b, " (%s)", in.Dialogue.Title)
		}
		if len(in.Dialogue.Participants) > 0 {
			fmt.Fprintf(&b, "\nParticipants: %s", strings.Join(in.Dialogue.Participants, ", "))
		}
	}

	if len(in.Memory) > 0 {
		b.WriteString("\n\nThings you remember:\n")
		for _, m := range in.Memory {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}

	if in.Environment != "" {
		fmt.Fprintf(&b, "\n\nEnvironment:\n%s", in.Environment)
	}

	if len(in.ToolNames) > 0 {
		fmt.Fprintf(&b, "\n\nYou can use the following tools: %s.", strings.Join(in.ToolNames, ", "))
	}

	return b.String()
}
