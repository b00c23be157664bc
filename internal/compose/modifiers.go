// internal/compose/modifiers.go
package compose

import (
	"strings"
)

// EmotionModifier colors the reply with a tone suffix when the inbound
// message carried an emotion tag.
type EmotionModifier struct{}

func (EmotionModifier) Name() string { return "emotion" }

var emotionSuffix = map[string]string{
	"happy":      " Glad to hear it!",
	"sad":        " I hope things look up soon.",
	"frustrated": " Let's sort this out together.",
	"excited":    " That does sound exciting.",
}

func (EmotionModifier) Apply(text string, ctx *Context) string {
	suffix, ok := emotionSuffix[strings.ToLower(ctx.Emotion)]
	if !ok || text == "" {
		return text
	}
	return strings.TrimRight(text, " ") + suffix
}

// FormalityModifier expands contractions when the dialogue calls for a
// formal register and leaves casual text alone.
type FormalityModifier struct{}

func (FormalityModifier) Name() string { return "formality" }

// Longer forms first so "can't" does not partially match inside "couldn't".
var contractions = []struct{ from, to string }{
	{"couldn't", "could not"},
	{"shouldn't", "should not"},
	{"wouldn't", "would not"},
	{"won't", "will not"},
	{"can't", "cannot"},
	{"don't", "do not"},
	{"doesn't", "does not"},
	{"isn't", "is not"},
	{"aren't", "are not"},
	{"I'm", "I am"},
	{"it's", "it is"},
	{"that's", "that is"},
	{"let's", "let us"},
}

func (FormalityModifier) Apply(text string, ctx *Context) string {
	if strings.ToLower(ctx.Formality) != "formal" {
		return text
	}
	for _, c := range contractions {
		text = strings.ReplaceAll(text, c.from, c.to)
		text = strings.ReplaceAll(text, capitalize(c.from), capitalize(c.to))
	}
	return text
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// SignaturePlugin appends a fixed sign-off, used by dialogues whose
// metadata configures one.
type SignaturePlugin struct {
	Text string
}

func (SignaturePlugin) Name() string       { return "signature" }
func (SignaturePlugin) Position() Position { return Append }
func (p SignaturePlugin) Render(_ *Context) string {
	return p.Text
}

// Defaults is the modifier chain the engine ships with.
func Defaults() *Composer {
	return New(
		[]Modifier{EmotionModifier{}, FormalityModifier{}},
		nil,
	)
}
