package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/PabloGalante/mermaidbot/internal/contract"
	"github.com/PabloGalante/mermaidbot/internal/diagram"
	"github.com/PabloGalante/mermaidbot/internal/domain"
	"github.com/PabloGalante/mermaidbot/internal/observability"
)

const instrumentationName = "github.com/PabloGalante/mermaidbot/internal/app/conversation"

const (
	WelcomeMessage  = `Hi! I am your Mermaid Flowchart Generator. Describe a workflow or system design (e.g., "A CI/CD pipeline for a mobile app") and I will generate the diagram for you! You can type as much detail as you need.`
	FailureMessage  = "Sorry, I encountered an error processing your request. Please try again."
	CompleteMessage = "This diagram session is complete. Start a new session to create another diagram."
)

var (
	// ErrSessionReset is returned by Send when the session was reset while
	// the completion was outstanding. The late result is dropped.
	ErrSessionReset = errors.New("session was reset during the turn")
	ErrClosed       = errors.New("session is closed")
)

// ContractSource yields the behavioral contract for the next request.
// *contract.Store implements it.
type ContractSource interface {
	Current() contract.Contract
}

type staticContract contract.Contract

func (s staticContract) Current() contract.Contract { return contract.Contract(s) }

// StaticContract wraps a fixed contract.
func StaticContract(c contract.Contract) ContractSource { return staticContract(c) }

type Deps struct {
	Completion domain.CompletionClient
	Renderer   domain.DiagramRenderer
	Contract   ContractSource // defaults to contract.Default()
	Now        func() time.Time
	NewID      func() string
}

func (d *Deps) defaults() {
	if d.Contract == nil {
		d.Contract = StaticContract(contract.Default())
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
}

// Controller owns the state of one session. State changes only through its
// methods; readers get deep copies.
type Controller struct {
	id   domain.SessionID
	deps Deps

	mu        sync.Mutex
	state     domain.SessionState
	renderGen uint64
	subs      map[int]chan domain.SessionState
	nextSub   int
	closed    bool

	// renders run on ctx so Close can cancel them.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewController(id domain.SessionID, deps Deps) *Controller {
	deps.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		id:     id,
		deps:   deps,
		subs:   make(map[int]chan domain.SessionState),
		ctx:    ctx,
		cancel: cancel,
	}
	c.state = domain.SessionState{ID: id}
	c.resetLocked()
	return c
}

func (c *Controller) ID() domain.SessionID { return c.id }

// Snapshot returns a deep copy of the current state.
func (c *Controller) Snapshot() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Snapshot()
}

// Send runs one conversation turn. Empty input and a turn already in flight
// are rejected without touching state. Provider failures are not returned:
// they become a generic assistant message and the phase is kept.
func (c *Controller) Send(ctx context.Context, text string) (domain.Turn, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "session.send",
		trace.WithAttributes(attribute.String("session_id", string(c.id))))
	defer span.End()

	log := observability.LoggerFromContext(ctx).With("session_id", c.id)

	if strings.TrimSpace(text) == "" {
		return domain.Turn{}, domain.ErrEmptyInput
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.Turn{}, ErrClosed
	}
	if c.state.Pending {
		c.mu.Unlock()
		return domain.Turn{}, domain.ErrTurnInProgress
	}

	if c.state.Phase == domain.PhaseComplete {
		notice := c.newMessage(domain.RoleAssistant, CompleteMessage, "")
		c.state.Transcript = append(c.state.Transcript, notice)
		c.publishLocked()
		c.mu.Unlock()

		recordTurn(ctx, "complete")
		log.Info("turn skipped, session complete")
		return domain.Turn{AssistantMessage: notice}, nil
	}

	userMsg := c.newMessage(domain.RoleUser, text, "")
	c.state.Transcript = append(c.state.Transcript, userMsg)
	c.state.Pending = true
	epoch := c.state.Epoch
	phase := c.state.Phase
	turns := domain.TurnsFromTranscript(c.state.Transcript)
	c.publishLocked()
	c.mu.Unlock()

	log = log.With("phase", phase.String())
	log.Info("sending turn", "transcript_len", len(turns))

	result, err := c.complete(ctx, phase, turns)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Epoch != epoch || c.closed {
		recordTurn(ctx, "discarded")
		log.Warn("discarding completion for a reset session", "error", err)
		return domain.Turn{}, ErrSessionReset
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn failed")
		logTurnFailure(log, err)
		recordTurn(ctx, "failed")

		reply := c.newMessage(domain.RoleAssistant, FailureMessage, "")
		c.state.Transcript = append(c.state.Transcript, reply)
		c.state.Pending = false
		c.publishLocked()
		return domain.Turn{UserMessage: &userMsg, AssistantMessage: reply}, nil
	}

	next := result.next
	reply := c.newMessage(domain.RoleAssistant, result.ResponseText, result.DiagramSource)
	c.state.Transcript = append(c.state.Transcript, reply)
	c.state.Phase = next
	if strings.TrimSpace(result.DiagramSource) != "" {
		c.state.LatestDiagramSource = result.DiagramSource
		c.startRenderLocked(ctx, result.DiagramSource)
	}
	c.state.Pending = false
	c.publishLocked()

	recordTurn(ctx, "ok")
	log.Info("turn completed",
		"next_phase", next.String(),
		"has_diagram", result.DiagramSource != "",
	)
	return domain.Turn{UserMessage: &userMsg, AssistantMessage: reply}, nil
}

type completed struct {
	domain.CompletionResult
	next domain.Phase
}

// complete runs outside the lock.
func (c *Controller) complete(ctx context.Context, phase domain.Phase, turns []domain.PromptTurn) (completed, error) {
	instruction, err := c.deps.Contract.Current().Instruction(phase)
	if err != nil {
		return completed{}, fmt.Errorf("rendering contract: %w", err)
	}

	res, err := c.deps.Completion.Complete(ctx, domain.CompletionRequest{
		Turns:       turns,
		Phase:       phase,
		Instruction: instruction,
	})
	if err != nil {
		return completed{}, err
	}

	next, err := domain.Advance(phase, res)
	if err != nil {
		return completed{}, err
	}
	return completed{CompletionResult: res, next: next}, nil
}

// Reset replaces the state with a fresh session. Outstanding turns and
// renders started before the reset are ignored when they finish.
func (c *Controller) Reset() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetLocked()
	c.publishLocked()
	return c.state.Snapshot()
}

func (c *Controller) resetLocked() {
	c.renderGen++
	c.state = domain.SessionState{
		ID:         c.id,
		Phase:      domain.PhaseInput,
		Transcript: domain.Transcript{c.newMessage(domain.RoleAssistant, WelcomeMessage, "")},
		Epoch:      c.state.Epoch + 1,
	}
}

// startRenderLocked renders source in the background. Only the most recently
// requested render may update the preview.
func (c *Controller) startRenderLocked(ctx context.Context, source string) {
	c.renderGen++
	gen := c.renderGen
	req := domain.RenderRequest{Source: diagram.Sanitize(source), RawSource: source}

	// Keep the request's logger fields, drop its cancellation.
	renderCtx := observability.WithRequestID(c.ctx, observability.RequestIDFromContext(ctx))
	log := observability.LoggerFromContext(ctx).With("session_id", c.id, "render_gen", gen)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		out := c.deps.Renderer.Render(renderCtx, req)

		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.renderGen || c.closed {
			log.Debug("stale render discarded", "kind", out.Kind)
			return
		}
		if !out.IsRendered() {
			log.Warn("diagram failed validation", "message", out.Message)
		}
		c.state.Preview = &out
		c.publishLocked()
	}()
}

// Subscribe returns a channel that always holds the latest snapshot. Slow
// readers skip intermediate states. The channel is closed by cancel or Close.
func (c *Controller) Subscribe() (<-chan domain.SessionState, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan domain.SessionState, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.state.Snapshot()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(ch)
			}
		})
	}
}

// publishLocked must be called with mu held.
func (c *Controller) publishLocked() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.state.Snapshot()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

// Wait blocks until every render started so far has finished. It must not
// race with a Send that starts a render.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close cancels running renders, waits for them and closes all subscriptions.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancel()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Controller) newMessage(role domain.Role, content, diagramSource string) domain.Message {
	return domain.Message{
		ID:            domain.MessageID(c.deps.NewID()),
		Role:          role,
		Content:       content,
		DiagramSource: diagramSource,
		CreatedAt:     c.deps.Now(),
	}
}
