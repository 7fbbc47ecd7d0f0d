package diagram

import (
	"fmt"
	"strings"
)

// LintError points at the first structural problem found in a diagram.
type LintError struct {
	Line   int
	Reason string
}

func (e *LintError) Error() string {
	if e.Line == 0 {
		return "Parse error: " + e.Reason
	}
	return fmt.Sprintf("Parse error on line %d: %s", e.Line, e.Reason)
}

var diagramKeywords = []string{
	"flowchart", "graph",
	"sequenceDiagram", "classDiagram", "classDiagram-v2",
	"stateDiagram", "stateDiagram-v2", "erDiagram",
	"journey", "gantt", "pie", "gitGraph", "mindmap", "timeline",
	"quadrantChart", "requirementDiagram", "sankey-beta", "xychart-beta",
	"block-beta", "architecture-beta", "packet-beta", "kanban",
	"C4Context", "C4Container", "C4Component", "C4Dynamic", "C4Deployment",
}

var danglingArrows = []string{"-->", "---", "-.->", "-.-", "==>", "===", "--o", "--x", "<-->", "--"}

// Lint performs the structural checks that do not need a renderer: a known
// diagram header, and for flowcharts balanced brackets and quotes per
// statement, edges with a target and closed subgraphs. A nil result does not
// mean the renderer will accept the source.
func Lint(src string) error {
	lines := strings.Split(src, "\n")

	header, start := findHeader(lines)
	if header == "" {
		if start < 0 {
			return &LintError{Reason: "diagram source is empty"}
		}
		return &LintError{Line: start + 1, Reason: fmt.Sprintf("unknown diagram type %q", firstWord(lines[start]))}
	}
	if header != "flowchart" && header != "graph" {
		return nil
	}

	openSubgraphs := 0
	for i := start + 1; i < len(lines); i++ {
		line := stripComment(strings.TrimSpace(lines[i]))
		if line == "" {
			continue
		}

		switch word := strings.TrimSuffix(firstWord(line), ";"); word {
		case "subgraph":
			openSubgraphs++
		case "end":
			if openSubgraphs == 0 {
				return &LintError{Line: i + 1, Reason: "'end' without a matching subgraph"}
			}
			openSubgraphs--
			continue
		}

		if err := checkDelimiters(line); err != "" {
			return &LintError{Line: i + 1, Reason: err}
		}
		trimmed := strings.TrimSpace(strings.TrimSuffix(line, ";"))
		for _, arrow := range danglingArrows {
			if strings.HasSuffix(trimmed, arrow) {
				return &LintError{Line: i + 1, Reason: "edge has no target node"}
			}
		}
	}
	if openSubgraphs > 0 {
		return &LintError{Line: len(lines), Reason: fmt.Sprintf("%d subgraph(s) not closed with 'end'", openSubgraphs)}
	}
	return nil
}

// findHeader skips front matter, init directives and comments and returns
// the diagram keyword with its line index. start is -1 for empty input.
func findHeader(lines []string) (keyword string, start int) {
	inFrontMatter := false
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		switch {
		case line == "---":
			inFrontMatter = !inFrontMatter
			continue
		case inFrontMatter, line == "", strings.HasPrefix(line, "%%"):
			continue
		}

		word := firstWord(line)
		for _, kw := range diagramKeywords {
			if word == kw {
				return kw, i
			}
		}
		return "", i
	}
	return "", -1
}

// checkDelimiters scans one statement with the same string-aware state
// machine used for JSON candidates: brackets inside quotes are ignored.
// Stray closers are left to the renderer since shapes like A>text] use them.
func checkDelimiters(line string) string {
	var stack []byte
	inString := false
	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}

	for i := 0; i < len(line); i++ {
		b := line[i]
		if inString {
			if b == '"' {
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '(', '[', '{':
			stack = append(stack, b)
		case ')', ']', '}':
			if len(stack) == 0 {
				continue
			}
			if stack[len(stack)-1] != pairs[b] {
				return fmt.Sprintf("expected closing for '%c' but found '%c'", stack[len(stack)-1], b)
			}
			stack = stack[:len(stack)-1]
		}
	}

	if inString {
		return "unterminated quoted label"
	}
	if len(stack) > 0 {
		return fmt.Sprintf("unclosed '%c'", stack[len(stack)-1])
	}
	return ""
}

func stripComment(line string) string {
	if strings.HasPrefix(line, "%%") {
		return ""
	}
	return line
}

func firstWord(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
