// internal/compose/composer.go
package compose

import (
	"strings"

	"github.com/rainbowcity/dialogue/internal/types"
)

// Position states where a plugin's fragment lands relative to the
// generated text.
type Position string

const (
	Prepend Position = "prepend"
	Append  Position = "append"
	Replace Position = "replace"
)

// Context carries the signals modifiers and plugins shape the reply with.
type Context struct {
	Dialogue  *types.Dialogue
	Emotion   string
	Formality string
}

// Modifier rewrites the reply text. Modifiers must be deterministic: the
// same text and context always produce the same output.
type Modifier interface {
	Name() string
	Apply(text string, ctx *Context) string
}

// Plugin contributes a fragment at a fixed position. An empty fragment
// means the plugin abstains.
type Plugin interface {
	Name() string
	Position() Position
	Render(ctx *Context) string
}

// Output is the composed reply plus its provenance.
type Output struct {
	Content          string
	OriginalContent  string
	ModifiersApplied []string
}

// Composer runs the modifier chain in registration order, then merges
// plugin fragments. A replace plugin wins over everything after it.
type Composer struct {
	modifiers []Modifier
	plugins   []Plugin
}

func New(modifiers []Modifier, plugins []Plugin) *Composer {
	return &Composer{modifiers: modifiers, plugins: plugins}
}

// Compose shapes the raw generated text. The original text is preserved in
// the output for provenance.
func (c *Composer) Compose(text string, ctx *Context) *Output {
	if ctx == nil {
		ctx = &Context{}
	}

	out := &Output{OriginalContent: text}
	composed := text

	for _, m := range c.modifiers {
		next := m.Apply(composed, ctx)
		if next != composed {
			out.ModifiersApplied = append(out.ModifiersApplied, m.Name())
			composed = next
		}
	}

	var prefixes, suffixes []string
	for _, p := range c.plugins {
		fragment := p.Render(ctx)
		if fragment == "" {
			continue
		}
		switch p.Position() {
		case Prepend:
			prefixes = append(prefixes, fragment)
		case Append:
			suffixes = append(suffixes, fragment)
		case Replace:
			composed = fragment
			prefixes = nil
			suffixes = nil
		}
		out.ModifiersApplied = append(out.ModifiersApplied, p.Name())
	}

	parts := make([]string, 0, len(prefixes)+1+len(suffixes))
	parts = append(parts, prefixes...)
	parts = append(parts, composed)
	parts = append(parts, suffixes...)
	out.Content = strings.Join(parts, "\n\n")
	return out
}

// Provenance renders the composition record stored in reply metadata.
func (o *Output) Provenance() map[string]any {
	meta := map[string]any{
		"original_content": o.OriginalContent,
	}
	if len(o.ModifiersApplied) > 0 {
		meta["modifiers_applied"] = o.ModifiersApplied
	}
	return meta
}
