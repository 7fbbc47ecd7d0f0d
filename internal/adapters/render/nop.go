package render

import (
	"context"
	"html"
)

// NopEngine accepts anything the linter accepts and renders a placeholder.
// It backs the "none" renderer setting and tests.
type NopEngine struct{}

func (NopEngine) Parse(context.Context, string) error { return nil }

func (NopEngine) Render(_ context.Context, id, _ string) (string, error) {
	return `<svg id="` + html.EscapeString(id) + `" xmlns="http://www.w3.org/2000/svg" width="240" height="40">` +
		`<text x="10" y="25">rendering disabled</text></svg>`, nil
}
