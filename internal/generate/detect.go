// internal/generate/detect.go
package generate

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/rainbowcity/dialogue/pkg/llm"
)

// marker is the text fallback for providers that cannot emit structured
// tool calls: a line of the form
//
//	USE_TOOL: weather {"city": "Oslo"}
const marker = "USE_TOOL:"

// DetectMarker scans response text for the tool marker. On a hit it returns
// the synthesized call and the text with the marker line removed.
func DetectMarker(text string) (llm.ToolCall, string, bool) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), marker)
		if !ok {
			continue
		}

		name, args, ok := splitMarker(rest)
		if !ok {
			continue
		}

		cleaned := strings.TrimSpace(strings.Join(append(lines[:i:i], lines[i+1:]...), "\n"))
		call := llm.ToolCall{
			ID:   "fallback-" + uuid.New().String(),
			Type: "function",
			Function: llm.FunctionCall{
				Name:      name,
				Arguments: json.RawMessage(args),
			},
		}
		return call, cleaned, true
	}
	return llm.ToolCall{}, text, false
}

// splitMarker pulls the tool name and JSON argument object out of the text
// following the marker. Missing arguments default to an empty object.
func splitMarker(rest string) (string, string, bool) {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", "", false
	}

	brace := strings.IndexByte(rest, '{')
	if brace < 0 {
		name := strings.Fields(rest)
		if len(name) != 1 {
			return "", "", false
		}
		return name[0], "{}", true
	}

	name := strings.TrimSpace(rest[:brace])
	if name == "" || strings.ContainsAny(name, " \t") {
		return "", "", false
	}

	args := strings.TrimSpace(rest[brace:])
	if !json.Valid([]byte(args)) {
		return "", "", false
	}
	return name, args, true
}
