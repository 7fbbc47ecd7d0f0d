// Package contract holds the behavioral contract sent to the completion
// provider as its system instruction. The contract is versioned data: the
// syntax conventions the model must follow are enumerated options loaded from
// YAML, so changing them never touches the orchestration code.
package contract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/PabloGalante/mermaidbot/internal/domain"
)

// Rule is one diagram-syntax convention the model is told to follow.
type Rule string

const (
	RuleOneStatementPerLine Rule = "one_statement_per_line"
	RuleQuotedNodeLabels    Rule = "quoted_node_labels"
	RuleQuotedEdgeLabels    Rule = "quoted_edge_labels"
	RuleSubgraphBlocks      Rule = "subgraph_blocks"
	RuleClassDefsAtBottom   Rule = "class_defs_at_bottom"
	RuleBRLineBreaks        Rule = "br_line_breaks"
	RuleQuoteSpecialChars   Rule = "quote_special_chars"
	RuleFullCode            Rule = "full_code"
)

// EdgeLabelStyle selects how arrow labels are written.
type EdgeLabelStyle string

const (
	EdgeLabelQuotedDash EdgeLabelStyle = "quoted_dash" // A -- "Label" --> B
	EdgeLabelPipe       EdgeLabelStyle = "pipe"        // A -->|"Label"| B
)

// Contract is the configurable part of the system instruction.
type Contract struct {
	Version             string         `yaml:"version"`
	AssistantName       string         `yaml:"assistant_name"`
	EdgeLabelStyle      EdgeLabelStyle `yaml:"edge_label_style"`
	Rules               []Rule         `yaml:"rules"`
	StepLimit           int            `yaml:"step_limit"` // 0 means unlimited refinement
	CompleteAfterOutput bool           `yaml:"complete_after_output"`
	ResponseLanguages   []string       `yaml:"response_languages"`
}

// Default returns the contract the bot ships with: quoted labels, unlimited
// refinement, English answers.
func Default() Contract {
	return Contract{
		Version:        "3",
		AssistantName:  "Mermaid Flowchart Generator Bot",
		EdgeLabelStyle: EdgeLabelQuotedDash,
		Rules: []Rule{
			RuleOneStatementPerLine,
			RuleQuotedEdgeLabels,
			RuleQuotedNodeLabels,
			RuleSubgraphBlocks,
			RuleClassDefsAtBottom,
			RuleBRLineBreaks,
			RuleQuoteSpecialChars,
			RuleFullCode,
		},
		ResponseLanguages: []string{"English"},
	}
}

// Load reads a YAML contract. Fields missing from the file keep their
// default values.
func Load(path string) (Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Contract{}, fmt.Errorf("reading contract: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML contract.
func Parse(data []byte) (Contract, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Contract{}, fmt.Errorf("decoding contract: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Contract{}, err
	}
	return c, nil
}

// Validate rejects options the instruction template does not know.
func (c Contract) Validate() error {
	if strings.TrimSpace(c.Version) == "" {
		return fmt.Errorf("contract: version is required")
	}
	switch c.EdgeLabelStyle {
	case EdgeLabelQuotedDash, EdgeLabelPipe:
	default:
		return fmt.Errorf("contract: unknown edge_label_style %q", c.EdgeLabelStyle)
	}
	seen := make(map[Rule]bool, len(c.Rules))
	for _, r := range c.Rules {
		if _, ok := ruleText[r]; !ok {
			return fmt.Errorf("contract: unknown rule %q", r)
		}
		if seen[r] {
			return fmt.Errorf("contract: rule %q listed twice", r)
		}
		seen[r] = true
	}
	if c.StepLimit < 0 {
		return fmt.Errorf("contract: step_limit must be >= 0")
	}
	return nil
}

// Instruction renders the system instruction for a turn in the given phase.
func (c Contract) Instruction(current domain.Phase) (string, error) {
	var rules []string
	for _, r := range c.Rules {
		rules = append(rules, ruleText[r](c))
	}

	data := instructionData{
		Contract: c,
		Rules:    rules,
		Phases:   domain.AllPhases(),
		Current:  current,
	}

	var buf bytes.Buffer
	if err := instructionTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering contract v%s: %w", c.Version, err)
	}
	return buf.String(), nil
}

type instructionData struct {
	Contract
	Rules   []string
	Phases  []domain.Phase
	Current domain.Phase
}

var phaseMeaning = map[domain.Phase]string{
	domain.PhaseInput:    "the user is describing what they need",
	domain.PhaseClarify:  "you need more detail before drawing; ask focused questions",
	domain.PhaseOutput:   "you produced or updated the diagram",
	domain.PhaseComplete: "the user is done; no further changes are expected",
}

var instructionTemplate = template.Must(template.New("instruction").Funcs(template.FuncMap{
	"inc":     func(i int) int { return i + 1 },
	"meaning": func(p domain.Phase) string { return phaseMeaning[p] },
	"upper":   strings.ToUpper,
	"join":    strings.Join,
}).Parse(`You are a {{.AssistantName}}.
Your goal is to help users visualize workflows or IT architectures using Mermaid.js.
{{if .Rules}}
STRICT RULES FOR MERMAID SYNTAX (V11+):
{{range $i, $r := .Rules}}{{inc $i}}. {{$r}}
{{end}}{{end}}
CONVERSATION STEPS (use these numbers for "nextStep"):
{{range .Phases}}- {{printf "%d" .}} = {{upper .String}}: {{meaning .}}
{{end}}The conversation is currently at step {{printf "%d" .Current}} ({{upper .Current.String}}).
{{if gt .StepLimit 0}}Reach a final diagram within {{.StepLimit}} steps.
{{else}}NO STEP LIMIT: support continuous refinement of the diagram.
{{end}}{{if .CompleteAfterOutput}}After you deliver the diagram, set "nextStep" to 4 (COMPLETE).
{{else}}Only set "nextStep" to 4 (COMPLETE) when the user says they are finished.
{{end}}{{if gt (len .ResponseLanguages) 1}}Write "response" in each of these languages, in this order: {{join .ResponseLanguages ", "}}.
{{else if eq (len .ResponseLanguages) 1}}Write "response" in {{index .ResponseLanguages 0}}.
{{else}}Write "response" in the same language as the user.
{{end}}
You must return a JSON object with:
{
  "nextStep": number,
  "response": "Text response to user",
  "mermaidCode": "The FULL updated mermaid code string"
}
Omit "mermaidCode" when the diagram did not change in this turn.
`))

var ruleText = map[Rule]func(Contract) string{
	RuleOneStatementPerLine: func(Contract) string {
		return "ONE STATEMENT PER LINE: Every node definition, arrow, or subgraph boundary MUST be on its own unique line. Never concatenate statements."
	},
	RuleQuotedEdgeLabels: func(c Contract) string {
		if c.EdgeLabelStyle == EdgeLabelPipe {
			return `ARROW LABELS: Use the syntax 'A -->|"Label Text"| B'. ALWAYS wrap the label in double quotes inside the pipes.`
		}
		return `ARROW LABELS: Use the syntax 'A -- "Label Text" --> B'. ALWAYS wrap the label in double quotes. WRONG: A -->|Label| B. RIGHT: A -- "Label Text" --> B`
	},
	RuleQuotedNodeLabels: func(Contract) string {
		return `NODE LABELS: Use 'ID["Label Text"]'. ALWAYS wrap node labels in double quotes. Example: FE["Frontend App"]`
	},
	RuleSubgraphBlocks: func(Contract) string {
		return `SUBGRAPHS: Always start with 'subgraph ID ["Title"]' and always end with 'end' on a new line. Put a 'direction TB' or 'direction LR' inside subgraphs if needed.`
	},
	RuleClassDefsAtBottom: func(Contract) string {
		return "STYLES: Define at the bottom: 'classDef green fill:#d1fae5,stroke:#059669,stroke-width:2px;'. Apply: 'class nodeID green'"
	},
	RuleBRLineBreaks: func(Contract) string {
		return "MULTI-LINE: Use <br/> inside the quoted labels for line breaks."
	},
	RuleQuoteSpecialChars: func(Contract) string {
		return "Avoid using brackets like ( ) or { } inside labels unless they are inside the double quotes."
	},
	RuleFullCode: func(Contract) string {
		return "Always provide the FULL, valid Mermaid code."
	},
}
