package domain

type RenderKind string

const (
	RenderKindRendered    RenderKind = "rendered"
	RenderKindSyntaxError RenderKind = "syntax_error"
)

// SyntaxErrorHint is shown next to a diagram that failed validation.
const SyntaxErrorHint = `The AI generated invalid Mermaid syntax. Try asking it to "Fix the syntax error" or "Simplify the labels".`

// RenderOutcome is either a rendered SVG or a syntax error.
type RenderOutcome struct {
	Kind     RenderKind `json:"kind"`
	RenderID string     `json:"render_id,omitempty"`
	SVG      string     `json:"svg,omitempty"`

	// Set for syntax errors only.
	Message   string `json:"message,omitempty"`
	RawSource string `json:"raw_source,omitempty"`
	Hint      string `json:"hint,omitempty"`
}

func Rendered(id, svg string) RenderOutcome {
	return RenderOutcome{Kind: RenderKindRendered, RenderID: id, SVG: svg}
}

func SyntaxErrorOutcome(message, rawSource string) RenderOutcome {
	return RenderOutcome{
		Kind:      RenderKindSyntaxError,
		Message:   message,
		RawSource: rawSource,
		Hint:      SyntaxErrorHint,
	}
}

func (o RenderOutcome) IsRendered() bool {
	return o.Kind == RenderKindRendered
}

// Err returns the outcome as a *DiagramSyntaxError, or nil when rendered.
func (o RenderOutcome) Err() error {
	if o.IsRendered() {
		return nil
	}
	return &DiagramSyntaxError{Message: o.Message, RawSource: o.RawSource}
}
