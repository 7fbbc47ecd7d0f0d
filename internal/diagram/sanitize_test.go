package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "fenced_block",
			input: "```mermaid\nflowchart TD\nA-->B\n```",
			want:  "flowchart TD\nA-->B",
		},
		{
			name:  "bare_fence_and_whitespace",
			input: "  \n```\nflowchart LR\n  A --> B\n```\n\n",
			want:  "flowchart LR\n  A --> B",
		},
		{
			name:  "upper_case_tag",
			input: "```Mermaid\ngraph TD\nA-->B\n```",
			want:  "graph TD\nA-->B",
		},
		{
			name:  "fence_in_the_middle",
			input: "flowchart TD\n```\nA-->B",
			want:  "flowchart TD\n\nA-->B",
		},
		{
			name:  "styling_comment_at_end",
			input: "flowchart TD\nA-->B\n%% Styling",
			want:  "flowchart TD\nA-->B",
		},
		{
			name:  "styling_comment_before_class_defs_is_emptied",
			input: "flowchart TD\nA-->B\n  %%Styling  \nclassDef green fill:#d1fae5;",
			want:  "flowchart TD\nA-->B\n\nclassDef green fill:#d1fae5;",
		},
		{
			name:  "other_comments_kept",
			input: "flowchart TD\n%% Styling rules below\nA-->B",
			want:  "flowchart TD\n%% Styling rules below\nA-->B",
		},
		{
			name:  "nothing_to_strip",
			input: "flowchart TD\nA-->B",
			want:  "flowchart TD\nA-->B",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.input))
		})
	}
}

func TestSanitizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"```mermaid\nflowchart TD\nA-->B\n```",
		"`````mermaid`",
		"````",
		"``````mermaid```",
		"%% Styling%% Styling",
		"A %% Styling %% Styling\n%% Styling\r\n",
		"``%% Styling\n\n`x",
		"```mermaid\n```mermaid\n```\n```",
		"\t\n  %% Styling  \n\t",
		"flowchart TD\n  A[\"a `code`\"] --> B",
		"flowchart TD\nA-->B\n%% Styling\u00a0",
		"flowchart TD\nA-->B\n%% Styling\f",
		"A\n%% Styling\v\n",
		"%% Styling\u00a0%% Styling",
		"A\u2003%% Styling\u2028",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once), "input %q", in)
	}
}

func FuzzSanitizeIdempotent(f *testing.F) {
	f.Add("```mermaid\nflowchart TD\nA-->B\n```")
	f.Add("%% Styling%% Styling")
	f.Add("````mermaid")
	f.Add("flowchart TD\nA-->B\n%% Styling\u00a0")
	f.Add("flowchart TD\nA-->B\n%% Styling\f")
	f.Add("A\n%% Styling\v\n")
	f.Fuzz(func(t *testing.T, in string) {
		once := Sanitize(in)
		if twice := Sanitize(once); twice != once {
			t.Fatalf("Sanitize not idempotent for %q: %q != %q", in, twice, once)
		}
	})
}
