// internal/parse/parse.go
package parse

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rainbowcity/dialogue/internal/types"
)

// Summary is the normalized form of an inbound message: the text the prompt
// assembler consumes, the emotion labels and semantic tags the parser
// detected, and free-form annotations. Everything but Text is merged into
// the message metadata.
type Summary struct {
	Text        string
	Tags        []string
	Emotions    []string
	Annotations map[string]any
}

// Parser normalizes one family of content types into prompt-ready text.
type Parser interface {
	ContentTypes() []types.ContentType
	Parse(ctx context.Context, msg *types.Message) (*Summary, error)
}

// Registry routes messages to the parser registered for their content type.
type Registry struct {
	mu      sync.RWMutex
	parsers map[types.ContentType]Parser
}

// NewRegistry creates a registry preloaded with the builtin parsers.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[types.ContentType]Parser)}
	r.Register(&TextParser{})
	r.Register(&ImageParser{})
	r.Register(&AudioParser{})
	return r
}

// Register adds a parser for every content type it claims, replacing any
// previous registration.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ct := range p.ContentTypes() {
		r.parsers[ct] = p
	}
}

// Parse normalizes a message. A content type with no registered parser is a
// capability error, not a crash: the caller degrades to the raw content.
func (r *Registry) Parse(ctx context.Context, msg *types.Message) (*Summary, error) {
	r.mu.RLock()
	p, ok := r.parsers[msg.ContentType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no parser for content type %q: %w", msg.ContentType, types.ErrCapability)
	}
	return p.Parse(ctx, msg)
}

// TextParser handles plain text plus the two passthrough types, trimming
// and collapsing interior whitespace runs.
type TextParser struct{}

func (*TextParser) ContentTypes() []types.ContentType {
	return []types.ContentType{types.ContentText, types.ContentToolOutput, types.ContentPrompt}
}

func (*TextParser) Parse(_ context.Context, msg *types.Message) (*Summary, error) {
	text := strings.Join(strings.Fields(msg.Content), " ")
	return &Summary{
		Text:     text,
		Tags:     DetectTags(text),
		Emotions: DetectEmotions(text),
		Annotations: map[string]any{
			"char_count": len(text),
		},
	}, nil
}

// emotionKeywords maps surface vocabulary to the emotion labels the
// response composer understands. Scored by hit count, first entry wins ties.
var emotionKeywords = []struct {
	label string
	words []string
}{
	{"happy", []string{"thanks", "thank you", "great", "glad", "love", "wonderful"}},
	{"excited", []string{"excited", "amazing", "incredible", "can't wait"}},
	{"sad", []string{"sad", "unfortunately", "sorry to hear", "miss you"}},
	{"frustrated", []string{"frustrated", "frustrating", "annoying", "angry", "fed up", "broken"}},
}

// topicKeywords are the coarse subject tags worth surfacing to downstream
// consumers.
var topicKeywords = []string{
	"weather", "travel", "work", "study", "health", "food", "music", "technology",
}

// DetectEmotions scores the text against the emotion vocabulary and returns
// the best-matching label, or nil when nothing matches.
func DetectEmotions(text string) []string {
	lower := strings.ToLower(text)
	best, bestHits := "", 0
	for _, e := range emotionKeywords {
		hits := 0
		for _, w := range e.words {
			if strings.Contains(lower, w) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = e.label, hits
		}
	}
	if best == "" {
		return nil
	}
	return []string{best}
}

// DetectTags extracts coarse semantic tags: known topics plus a question
// marker.
func DetectTags(text string) []string {
	lower := strings.ToLower(text)
	var tags []string
	for _, topic := range topicKeywords {
		if strings.Contains(lower, topic) {
			tags = append(tags, topic)
		}
	}
	if strings.Contains(text, "?") {
		tags = append(tags, "question")
	}
	return tags
}

// ImageParser produces a textual stand-in for image content. The content is
// expected to be a reference (URL or attachment ID); a caption may ride in
// message metadata.
type ImageParser struct{}

func (*ImageParser) ContentTypes() []types.ContentType {
	return []types.ContentType{types.ContentImage}
}

func (*ImageParser) Parse(_ context.Context, msg *types.Message) (*Summary, error) {
	if strings.TrimSpace(msg.Content) == "" {
		return nil, fmt.Errorf("empty image reference: %w", types.ErrPrecondition)
	}
	caption := types.MetaString(msg.Metadata, "caption")
	text := fmt.Sprintf("[image: %s]", msg.Content)
	if caption != "" {
		text = fmt.Sprintf("[image: %s] %s", msg.Content, caption)
	}
	return &Summary{
		Text: text,
		Annotations: map[string]any{
			"media": "image",
		},
	}, nil
}

// AudioParser produces a textual stand-in for audio content. A transcript
// provided in metadata replaces the placeholder.
type AudioParser struct{}

func (*AudioParser) ContentTypes() []types.ContentType {
	return []types.ContentType{types.ContentAudio}
}

func (*AudioParser) Parse(_ context.Context, msg *types.Message) (*Summary, error) {
	if strings.TrimSpace(msg.Content) == "" {
		return nil, fmt.Errorf("empty audio reference: %w", types.ErrPrecondition)
	}
	if transcript := types.MetaString(msg.Metadata, "transcript"); transcript != "" {
		// A transcript is text; it gets the same emotion and tag treatment.
		return &Summary{
			Text:     transcript,
			Tags:     DetectTags(transcript),
			Emotions: DetectEmotions(transcript),
			Annotations: map[string]any{
				"media":       "audio",
				"transcribed": true,
			},
		}, nil
	}
	return &Summary{
		Text: fmt.Sprintf("[audio: %s]", msg.Content),
		Annotations: map[string]any{
			"media": "audio",
		},
	}, nil
}
