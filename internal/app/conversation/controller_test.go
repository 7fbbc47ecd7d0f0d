package conversation_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/PabloGalante/mermaidbot/internal/adapters/llm"
	"github.com/PabloGalante/mermaidbot/internal/adapters/render"
	"github.com/PabloGalante/mermaidbot/internal/app/conversation"
	"github.com/PabloGalante/mermaidbot/internal/diagram"
	"github.com/PabloGalante/mermaidbot/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const loginFlow = "flowchart TD\nA[\"Login\"] --> B[\"Validate\"] --> C[\"Dashboard\"]"

type recordingRenderer struct {
	mu       sync.Mutex
	requests []domain.RenderRequest
	block    map[string]chan struct{}
}

func (r *recordingRenderer) Render(ctx context.Context, req domain.RenderRequest) domain.RenderOutcome {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	n := len(r.requests)
	gate := r.block[req.Source]
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.SyntaxErrorOutcome(ctx.Err().Error(), req.RawSource)
		}
	}
	return domain.Rendered(fmt.Sprintf("mermaid-%d", n), "<svg>"+req.Source+"</svg>")
}

func (r *recordingRenderer) Requests() []domain.RenderRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.RenderRequest(nil), r.requests...)
}

func newController(t *testing.T, completion domain.CompletionClient, renderer domain.DiagramRenderer) *conversation.Controller {
	t.Helper()
	c := conversation.NewController("s-1", conversation.Deps{
		Completion: completion,
		Renderer:   renderer,
	})
	t.Cleanup(c.Close)
	return c
}

func reply(phase domain.Phase, text, diagram string) llm.MockReply {
	return llm.MockReply{Result: domain.CompletionResult{NextPhase: phase, ResponseText: text, DiagramSource: diagram}}
}

func TestNewController_InitialState(t *testing.T) {
	c := newController(t, llm.NewMockLLM(), &recordingRenderer{})

	s := c.Snapshot()
	assert.Equal(t, domain.SessionID("s-1"), s.ID)
	assert.Equal(t, domain.PhaseInput, s.Phase)
	assert.False(t, s.Pending)
	assert.Empty(t, s.LatestDiagramSource)
	assert.Nil(t, s.Preview)
	require.Len(t, s.Transcript, 1)
	assert.Equal(t, domain.RoleAssistant, s.Transcript[0].Role)
	assert.Equal(t, conversation.WelcomeMessage, s.Transcript[0].Content)
}

func TestSend_ProducesDiagram(t *testing.T) {
	ctx := context.Background()
	mock := llm.NewMockLLM(reply(domain.PhaseOutput, "Here is your flowchart", loginFlow))
	renderer := &recordingRenderer{}
	c := newController(t, mock, renderer)

	turn, err := c.Send(ctx, "A user logs in, then the system validates credentials, then redirects to dashboard")
	require.NoError(t, err)
	c.Wait()

	require.NotNil(t, turn.UserMessage)
	assert.Equal(t, domain.RoleUser, turn.UserMessage.Role)
	assert.Equal(t, "Here is your flowchart", turn.AssistantMessage.Content)
	assert.Equal(t, loginFlow, turn.AssistantMessage.DiagramSource)

	s := c.Snapshot()
	assert.Equal(t, domain.PhaseOutput, s.Phase)
	assert.Equal(t, loginFlow, s.LatestDiagramSource)
	assert.False(t, s.Pending)
	require.Len(t, s.Transcript, 3)
	assert.Equal(t, domain.RoleUser, s.Transcript[1].Role)
	assert.Equal(t, domain.RoleAssistant, s.Transcript[2].Role)

	reqs := renderer.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, diagram.Sanitize(loginFlow), reqs[0].Source)
	assert.Equal(t, loginFlow, reqs[0].RawSource)

	require.NotNil(t, s.Preview)
	assert.True(t, s.Preview.IsRendered())

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, domain.PhaseInput, calls[0].Phase)
	require.Len(t, calls[0].Turns, 2)
	assert.Equal(t, domain.RoleAssistant, calls[0].Turns[0].Role)
	assert.Equal(t, domain.RoleUser, calls[0].Turns[1].Role)
	assert.Contains(t, calls[0].Instruction, "nextStep")
}

func TestSend_SanitizesBeforeRendering(t *testing.T) {
	fenced := "```mermaid\n" + loginFlow + "\n%% Styling\n```"
	renderer := &recordingRenderer{}
	c := newController(t, llm.NewMockLLM(reply(domain.PhaseOutput, "ok", fenced)), renderer)

	_, err := c.Send(context.Background(), "login")
	require.NoError(t, err)
	c.Wait()

	reqs := renderer.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, loginFlow, reqs[0].Source)
	assert.Equal(t, fenced, c.Snapshot().LatestDiagramSource)
}

func TestSend_RejectsEmptyInput(t *testing.T) {
	mock := llm.NewMockLLM()
	c := newController(t, mock, &recordingRenderer{})
	before := c.Snapshot()

	for _, text := range []string{"", "   ", "\n\t "} {
		_, err := c.Send(context.Background(), text)
		assert.ErrorIs(t, err, domain.ErrEmptyInput)
	}

	assert.Empty(t, mock.Calls())
	assert.Equal(t, before, c.Snapshot())
}

func TestSend_SecondSendWhilePendingIsRejected(t *testing.T) {
	mock := llm.NewMockLLM(reply(domain.PhaseClarify, "Which steps?", ""))
	mock.Gate = make(chan struct{})
	c := newController(t, mock, &recordingRenderer{})

	done := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), "first")
		done <- err
	}()
	require.Eventually(t, func() bool { return c.Snapshot().Pending }, time.Second, time.Millisecond)

	pending := c.Snapshot()
	_, err := c.Send(context.Background(), "second")
	assert.ErrorIs(t, err, domain.ErrTurnInProgress)
	assert.Equal(t, pending, c.Snapshot())
	assert.Len(t, mock.Calls(), 1)

	close(mock.Gate)
	require.NoError(t, <-done)

	s := c.Snapshot()
	assert.False(t, s.Pending)
	assert.Equal(t, domain.PhaseClarify, s.Phase)
	require.Len(t, s.Transcript, 3)
	assert.Equal(t, "first", s.Transcript[1].Content)
	assert.Len(t, mock.Calls(), 1)
}

func TestSend_InvalidPhaseKeepsPhase(t *testing.T) {
	for _, value := range []int{0, 5, -1, 42} {
		t.Run(fmt.Sprint(value), func(t *testing.T) {
			mock := llm.NewMockLLM(
				reply(domain.PhaseClarify, "Tell me more", ""),
				reply(domain.Phase(value), "whatever", loginFlow),
			)
			renderer := &recordingRenderer{}
			c := newController(t, mock, renderer)

			_, err := c.Send(context.Background(), "orders")
			require.NoError(t, err)
			turn, err := c.Send(context.Background(), "more detail")
			require.NoError(t, err)
			c.Wait()

			assert.Equal(t, conversation.FailureMessage, turn.AssistantMessage.Content)
			s := c.Snapshot()
			assert.Equal(t, domain.PhaseClarify, s.Phase)
			assert.Empty(t, s.LatestDiagramSource)
			assert.Empty(t, renderer.Requests())
			assert.False(t, s.Pending)
		})
	}
}

func TestSend_ProviderFailuresShowGenericMessage(t *testing.T) {
	tests := []struct {
		name  string
		reply llm.MockReply
	}{
		{"provider error", llm.MockReply{Err: &domain.ProviderError{Provider: "gemini", Err: errors.New("quota exceeded for key AIza...")}}},
		{"malformed response", llm.MockReply{Raw: "I am not JSON"}},
		{"missing field", llm.MockReply{Raw: `{"response":"no step"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := llm.NewMockLLM(tt.reply)
			c := newController(t, mock, &recordingRenderer{})

			turn, err := c.Send(context.Background(), "a pipeline")
			require.NoError(t, err)

			assert.Equal(t, conversation.FailureMessage, turn.AssistantMessage.Content)
			s := c.Snapshot()
			assert.Equal(t, domain.PhaseInput, s.Phase)
			assert.False(t, s.Pending)
			require.Len(t, s.Transcript, 3)
			for _, m := range s.Transcript {
				assert.NotContains(t, m.Content, "quota")
				assert.NotContains(t, m.Content, "JSON")
			}
		})
	}
}

func TestSend_FailedTurnCanBeResent(t *testing.T) {
	mock := llm.NewMockLLM(
		llm.MockReply{Err: &domain.ProviderError{Provider: "mock", Err: errors.New("timeout")}},
		reply(domain.PhaseOutput, "Here", loginFlow),
	)
	c := newController(t, mock, &recordingRenderer{})

	_, err := c.Send(context.Background(), "login")
	require.NoError(t, err)
	_, err = c.Send(context.Background(), "login")
	require.NoError(t, err)
	c.Wait()

	assert.Equal(t, domain.PhaseOutput, c.Snapshot().Phase)
	assert.Len(t, mock.Calls(), 2)
}

func TestSend_CompletePhaseSkipsProvider(t *testing.T) {
	mock := llm.NewMockLLM(reply(domain.PhaseComplete, "All done", loginFlow))
	c := newController(t, mock, &recordingRenderer{})

	_, err := c.Send(context.Background(), "login flow, final")
	require.NoError(t, err)
	c.Wait()
	require.Equal(t, domain.PhaseComplete, c.Snapshot().Phase)
	before := c.Snapshot()

	for i, text := range []string{"one more change", "hello?"} {
		turn, err := c.Send(context.Background(), text)
		require.NoError(t, err)
		assert.Nil(t, turn.UserMessage)
		assert.Equal(t, conversation.CompleteMessage, turn.AssistantMessage.Content)

		s := c.Snapshot()
		require.Len(t, s.Transcript, len(before.Transcript)+i+1)
		last := s.Transcript[len(s.Transcript)-1]
		assert.Equal(t, domain.RoleAssistant, last.Role)
		assert.Equal(t, domain.PhaseComplete, s.Phase)
	}
	assert.Len(t, mock.Calls(), 1)
}

func TestSend_DiagramRetainedAcrossClarifyTurns(t *testing.T) {
	mock := llm.NewMockLLM(
		reply(domain.PhaseOutput, "Here", loginFlow),
		reply(domain.PhaseClarify, "Should failed logins loop back?", ""),
	)
	renderer := &recordingRenderer{}
	c := newController(t, mock, renderer)

	_, err := c.Send(context.Background(), "login")
	require.NoError(t, err)
	c.Wait()
	_, err = c.Send(context.Background(), "add error handling")
	require.NoError(t, err)
	c.Wait()

	s := c.Snapshot()
	assert.Equal(t, domain.PhaseClarify, s.Phase)
	assert.Equal(t, loginFlow, s.LatestDiagramSource)
	require.NotNil(t, s.Preview)
	assert.True(t, s.Preview.IsRendered())
	assert.Len(t, renderer.Requests(), 1)
}

func TestSend_SyntaxErrorIsNotATurnFailure(t *testing.T) {
	broken := "flowchart TD\nA --> ["
	mock := llm.NewMockLLM(reply(domain.PhaseOutput, "Here is your flowchart", broken))
	c := newController(t, mock, render.NewAdapter(render.NopEngine{}, time.Second))

	turn, err := c.Send(context.Background(), "anything")
	require.NoError(t, err)
	c.Wait()

	assert.Equal(t, "Here is your flowchart", turn.AssistantMessage.Content)
	s := c.Snapshot()
	assert.Equal(t, domain.PhaseOutput, s.Phase)
	require.NotNil(t, s.Preview)
	assert.Equal(t, domain.RenderKindSyntaxError, s.Preview.Kind)
	assert.NotEmpty(t, s.Preview.Message)
	assert.Equal(t, broken, s.Preview.RawSource)
	assert.Equal(t, domain.SyntaxErrorHint, s.Preview.Hint)
}

func TestRender_StaleResultDiscarded(t *testing.T) {
	second := "flowchart TD\nX[\"New\"] --> Y[\"Diagram\"]"
	renderer := &recordingRenderer{block: map[string]chan struct{}{loginFlow: make(chan struct{})}}
	mock := llm.NewMockLLM(
		reply(domain.PhaseOutput, "first", loginFlow),
		reply(domain.PhaseOutput, "second", second),
	)
	c := newController(t, mock, renderer)

	_, err := c.Send(context.Background(), "v1")
	require.NoError(t, err)
	_, err = c.Send(context.Background(), "v2")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		p := c.Snapshot().Preview
		return p != nil && p.SVG == "<svg>"+second+"</svg>"
	}, time.Second, time.Millisecond)

	close(renderer.block[loginFlow])
	c.Wait()

	s := c.Snapshot()
	assert.Equal(t, "<svg>"+second+"</svg>", s.Preview.SVG)
	assert.Equal(t, second, s.LatestDiagramSource)
	assert.Len(t, renderer.Requests(), 2)
}

func TestReset_RestoresInitialState(t *testing.T) {
	mock := llm.NewMockLLM(reply(domain.PhaseOutput, "Here", loginFlow))
	c := newController(t, mock, &recordingRenderer{})

	_, err := c.Send(context.Background(), "login")
	require.NoError(t, err)
	c.Wait()
	before := c.Snapshot()
	require.NotNil(t, before.Preview)

	s := c.Reset()

	assert.Equal(t, domain.PhaseInput, s.Phase)
	assert.Empty(t, s.LatestDiagramSource)
	assert.Nil(t, s.Preview)
	assert.False(t, s.Pending)
	require.Len(t, s.Transcript, 1)
	assert.Equal(t, conversation.WelcomeMessage, s.Transcript[0].Content)
	assert.Greater(t, s.Epoch, before.Epoch)
	assert.Equal(t, s, c.Snapshot())
}

func TestReset_DiscardsLateCompletion(t *testing.T) {
	mock := llm.NewMockLLM(reply(domain.PhaseOutput, "late", loginFlow))
	mock.Gate = make(chan struct{})
	renderer := &recordingRenderer{}
	c := newController(t, mock, renderer)

	done := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), "login")
		done <- err
	}()
	require.Eventually(t, func() bool { return c.Snapshot().Pending }, time.Second, time.Millisecond)

	fresh := c.Reset()
	close(mock.Gate)
	assert.ErrorIs(t, <-done, conversation.ErrSessionReset)
	c.Wait()

	assert.Equal(t, fresh, c.Snapshot())
	assert.Empty(t, renderer.Requests())
}

func TestSubscribe_ReceivesSnapshots(t *testing.T) {
	mock := llm.NewMockLLM(reply(domain.PhaseOutput, "Here", loginFlow))
	c := newController(t, mock, &recordingRenderer{})

	updates, cancel := c.Subscribe()
	defer cancel()

	first := <-updates
	assert.Len(t, first.Transcript, 1)

	_, err := c.Send(context.Background(), "login")
	require.NoError(t, err)

	deadline := time.After(time.Second)
	for {
		select {
		case s := <-updates:
			if s.Preview != nil && !s.Pending {
				assert.Len(t, s.Transcript, 3)
				return
			}
		case <-deadline:
			t.Fatal("no snapshot with a preview received")
		}
	}
}

func TestClose_EndsSubscriptionsAndSends(t *testing.T) {
	c := conversation.NewController("s-2", conversation.Deps{
		Completion: llm.NewMockLLM(),
		Renderer:   &recordingRenderer{},
	})
	updates, cancel := c.Subscribe()
	<-updates

	c.Close()
	c.Close()
	cancel()

	_, ok := <-updates
	assert.False(t, ok)

	_, err := c.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, conversation.ErrClosed)
}
