package domain

import "context"

// PromptTurn is one transcript entry as the completion provider sees it.
type PromptTurn struct {
	Role    Role
	Content string
}

// CompletionRequest is everything a provider needs for one turn.
type CompletionRequest struct {
	Turns       []PromptTurn
	Phase       Phase
	Instruction string // rendered behavioral contract
}

// CompletionResult is the parsed structured reply of the provider.
// NextPhase is not validated here, see Advance.
type CompletionResult struct {
	NextPhase     Phase
	ResponseText  string
	DiagramSource string
}

// CompletionClient defines how the core talks to a generative model.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// RenderRequest carries the sanitized source to render and the original
// model output for display when validation fails.
type RenderRequest struct {
	Source    string
	RawSource string
}

// DiagramRenderer turns diagram source into markup. Implementations must
// report every failure through the returned outcome and never panic.
type DiagramRenderer interface {
	Render(ctx context.Context, req RenderRequest) RenderOutcome
}

// TurnsFromTranscript maps the transcript to provider turns, in order.
func TurnsFromTranscript(t Transcript) []PromptTurn {
	out := make([]PromptTurn, 0, len(t))
	for _, m := range t {
		out = append(out, PromptTurn{Role: m.Role, Content: m.Content})
	}
	return out
}
