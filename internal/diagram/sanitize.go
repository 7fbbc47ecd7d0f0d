// Package diagram holds the text-level processing of Mermaid source returned
// by the model: sanitizing it before validation and a cheap structural lint.
package diagram

import (
	"regexp"
	"strings"
)

var (
	// Opening fence with the mermaid tag, or a bare fence.
	fencePattern = regexp.MustCompile("(?i)```(?:mermaid)?")

	// "%% Styling" with nothing after it. The model leaves it above an empty
	// style block and some renderer versions refuse to parse it. The blank
	// class covers every non-newline rune strings.TrimSpace strips.
	stylingCommentPattern = regexp.MustCompile(`(?m)(?:[\t\v\f\r \x{85}\p{Z}]*%%[\t\v\f\r \x{85}\p{Z}]*Styling)+[\t\v\f\r \x{85}\p{Z}]*$`)
)

// Sanitize removes markdown code fences and empty styling comments from raw
// model output and trims the result. It never fails.
func Sanitize(raw string) string {
	s := fencePattern.ReplaceAllString(raw, "")
	s = stylingCommentPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
