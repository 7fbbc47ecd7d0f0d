package llm

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/PabloGalante/mermaidbot/internal/domain"
)

// wireResult is the structured reply every provider is asked for.
type wireResult struct {
	NextStep    *int    `json:"nextStep"`
	Response    *string `json:"response"`
	MermaidCode string  `json:"mermaidCode,omitempty"`
}

// ParseResult decodes provider text into a CompletionResult. The text should
// be a bare JSON object; if it is wrapped in prose or a code fence the first
// top-level object that decodes is used. Missing required fields are a
// MalformedResponseError. The step value is not range checked here.
func ParseResult(raw string) (domain.CompletionResult, error) {
	wire, err := decodeWire(raw)
	if err != nil {
		return domain.CompletionResult{}, &domain.MalformedResponseError{Raw: raw, Err: err}
	}

	switch {
	case wire.NextStep == nil:
		err = errors.New(`missing required field "nextStep"`)
	case wire.Response == nil:
		err = errors.New(`missing required field "response"`)
	}
	if err != nil {
		return domain.CompletionResult{}, &domain.MalformedResponseError{Raw: raw, Err: err}
	}

	return domain.CompletionResult{
		NextPhase:     domain.Phase(*wire.NextStep),
		ResponseText:  *wire.Response,
		DiagramSource: wire.MermaidCode,
	}, nil
}

func decodeWire(raw string) (wireResult, error) {
	var wire wireResult
	firstErr := json.Unmarshal([]byte(strings.TrimSpace(raw)), &wire)
	if firstErr == nil {
		return wire, nil
	}

	for _, candidate := range findJSONCandidates(raw) {
		var w wireResult
		if err := json.Unmarshal([]byte(candidate), &w); err == nil {
			return w, nil
		}
	}
	return wireResult{}, firstErr
}

// findJSONCandidates returns the top-level {...} spans of s. Braces inside
// JSON strings are skipped. Iterating bytes is safe for the ASCII delimiters
// because UTF-8 never uses them inside multi-byte sequences.
func findJSONCandidates(s string) []string {
	var (
		candidates []string
		depth      int
		start      = -1
		inString   bool
		escape     bool
	)

	for i := 0; i < len(s); i++ {
		b := s[i]

		if escape {
			escape = false
			continue
		}
		if inString {
			if b == '\\' {
				escape = true
			} else if b == '"' {
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					candidates = append(candidates, s[start:i+1])
					start = -1
				}
			}
		}
	}
	return candidates
}
