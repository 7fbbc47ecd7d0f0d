package contract

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/mermaidbot/internal/domain"
)

func TestDefaultInstructionMentionsEveryRule(t *testing.T) {
	c := Default()
	out, err := c.Instruction(domain.PhaseInput)
	require.NoError(t, err)

	for _, r := range c.Rules {
		assert.Contains(t, out, ruleText[r](c))
	}
	assert.Contains(t, out, "1. ONE STATEMENT PER LINE")
	assert.Contains(t, out, "- 2 = CLARIFY")
	assert.Contains(t, out, "currently at step 1 (INPUT)")
	assert.Contains(t, out, "NO STEP LIMIT")
	assert.Contains(t, out, `"nextStep": number`)
	assert.Contains(t, out, "Write \"response\" in English.")
}

func TestInstructionOptions(t *testing.T) {
	c := Default()
	c.EdgeLabelStyle = EdgeLabelPipe
	c.StepLimit = 3
	c.CompleteAfterOutput = true
	c.ResponseLanguages = []string{"English", "Traditional Chinese"}

	out, err := c.Instruction(domain.PhaseOutput)
	require.NoError(t, err)

	assert.Contains(t, out, `A -->|"Label Text"| B`)
	assert.Contains(t, out, "within 3 steps")
	assert.Contains(t, out, `set "nextStep" to 4 (COMPLETE)`)
	assert.Contains(t, out, "English, Traditional Chinese")
	assert.Contains(t, out, "currently at step 3 (OUTPUT)")
	assert.NotContains(t, out, "NO STEP LIMIT")
}

func TestParse(t *testing.T) {
	got, err := Parse([]byte(`
version: "2"
edge_label_style: pipe
rules: [one_statement_per_line, full_code]
step_limit: 3
response_languages: []
`))
	require.NoError(t, err)

	want := Default()
	want.Version = "2"
	want.EdgeLabelStyle = EdgeLabelPipe
	want.Rules = []Rule{RuleOneStatementPerLine, RuleFullCode}
	want.StepLimit = 3
	want.ResponseLanguages = []string{}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Parse mismatch (-want +got):\n%s", diff)
	}

	out, err := got.Instruction(domain.PhaseInput)
	require.NoError(t, err)
	assert.Contains(t, out, "same language as the user")
}

func TestParseEmptyKeepsDefaults(t *testing.T) {
	got, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), got)
}

func TestParseRejectsUnknownOptions(t *testing.T) {
	for name, doc := range map[string]string{
		"rule":      "rules: [use_emoji]",
		"style":     "edge_label_style: arrows",
		"field":     "temperature: 2",
		"duplicate": "rules: [full_code, full_code]",
		"negative":  "step_limit: -1",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestShippedContractFileMatchesDefault(t *testing.T) {
	got, err := Load(filepath.Join("..", "..", "configs", "contract.yaml"))
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), got); diff != "" {
		t.Fatalf("configs/contract.yaml drifted from Default (-want +got):\n%s", diff)
	}
}

func TestWatchReloadsContract(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contract.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`version: "3"`), 0o644))

	store := NewStore(Default())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	// The watcher may not be registered yet, so keep rewriting until it sees a change.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("version: \"4\"\nstep_limit: 3\n"), 0o644)
		return store.Current().Version == "4"
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, 3, store.Current().StepLimit)

	// A broken file keeps the last good contract.
	require.NoError(t, os.WriteFile(path, []byte("rules: [nope]"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, "4", store.Current().Version)
}

func TestStoreSetValidates(t *testing.T) {
	store := NewStore(Default())
	bad := Default()
	bad.Rules = append(bad.Rules, Rule("shout"))

	err := store.Set(bad)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "shout"))
	assert.Equal(t, Default(), store.Current())
}
