package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PabloGalante/mermaidbot/internal/domain"
)

// MockReply is one scripted provider answer. Raw, when set, goes through
// ParseResult like real provider text.
type MockReply struct {
	Result domain.CompletionResult
	Raw    string
	Err    error
}

// MockLLM replays scripted replies in order, then falls back to a canned
// flowchart built from the last user message. Useful for local runs and tests.
type MockLLM struct {
	mu     sync.Mutex
	script []MockReply
	calls  []domain.CompletionRequest

	// Gate, when set, blocks every call until it receives a value or is closed.
	Gate chan struct{}
}

func NewMockLLM(script ...MockReply) *MockLLM {
	return &MockLLM{script: script}
}

// Complete implements domain.CompletionClient.
func (m *MockLLM) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	var reply *MockReply
	if len(m.script) > 0 {
		reply = &m.script[0]
		m.script = m.script[1:]
	}
	gate := m.Gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.CompletionResult{}, &domain.ProviderError{Provider: "mock", Err: ctx.Err()}
		}
	}

	if reply == nil {
		return cannedResult(req), nil
	}
	if reply.Err != nil {
		return domain.CompletionResult{}, reply.Err
	}
	if reply.Raw != "" {
		return ParseResult(reply.Raw)
	}
	return reply.Result, nil
}

// Calls returns the requests received so far.
func (m *MockLLM) Calls() []domain.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.CompletionRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

func cannedResult(req domain.CompletionRequest) domain.CompletionResult {
	var last string
	for i := len(req.Turns) - 1; i >= 0; i-- {
		if req.Turns[i].Role == domain.RoleUser {
			last = req.Turns[i].Content
			break
		}
	}
	label := strings.ReplaceAll(strings.Join(strings.Fields(last), " "), `"`, "#quot;")
	if r := []rune(label); len(r) > 40 {
		label = string(r[:40]) + "..."
	}
	return domain.CompletionResult{
		NextPhase:    domain.PhaseOutput,
		ResponseText: fmt.Sprintf("Here is a first sketch of %q.", last),
		DiagramSource: "flowchart TD\n" +
			`    A["` + label + `"] --> B["Done"]`,
	}
}
