package entities

import (
	"fmt"
	"strings"
)

// RenderStyle selects how turn history is rendered into model input
type RenderStyle string

const (
	// RenderPlain joins turn texts with newlines, the format seq2seq chat models expect
	RenderPlain RenderStyle = "plain"
	// RenderTagged prefixes every line with its speaker role
	RenderTagged RenderStyle = "tagged"
)

// ParseRenderStyle parses a render style name. An empty name selects RenderPlain.
func ParseRenderStyle(name string) (RenderStyle, error) {
	switch RenderStyle(strings.ToLower(strings.TrimSpace(name))) {
	case "", RenderPlain:
		return RenderPlain, nil
	case RenderTagged:
		return RenderTagged, nil
	default:
		return "", fmt.Errorf("unknown render style %q", name)
	}
}

// Render deterministically concatenates turns into a single prompt string.
// It has no side effects and depends only on the turns and the style.
func Render(turns []Turn, style RenderStyle) string {
	var b strings.Builder
	for i, turn := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		if style == RenderTagged {
			b.WriteString(string(turn.Role))
			b.WriteString(": ")
		}
		b.WriteString(turn.Text)
	}
	return b.String()
}
