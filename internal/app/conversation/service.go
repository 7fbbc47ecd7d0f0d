package conversation

import (
	"context"

	"github.com/google/uuid"

	"github.com/PabloGalante/mermaidbot/internal/domain"
	"github.com/PabloGalante/mermaidbot/internal/observability"
)

// SessionStore keeps live controllers by id.
type SessionStore interface {
	Create(id domain.SessionID, c *Controller) error
	Get(id domain.SessionID) (*Controller, error)
	Delete(id domain.SessionID) (*Controller, error)
	Drain() []*Controller
}

// Service is the front used by the HTTP API and the REPL. Sessions are
// independent and live in memory only.
type Service struct {
	deps     Deps
	sessions SessionStore
}

func NewService(deps Deps, sessions SessionStore) *Service {
	deps.defaults()
	return &Service{
		deps:     deps,
		sessions: sessions,
	}
}

type StartSessionOutput struct {
	Session domain.SessionState
}

func (s *Service) StartSession(ctx context.Context) (*StartSessionOutput, error) {
	id := domain.SessionID(uuid.NewString())
	log := observability.LoggerFromContext(ctx).With("session_id", id)

	ctrl := NewController(id, s.deps)
	if err := s.sessions.Create(id, ctrl); err != nil {
		ctrl.Close()
		log.Error("failed to create session", "error", err)
		return nil, err
	}

	log.Info("session started")
	return &StartSessionOutput{Session: ctrl.Snapshot()}, nil
}

type SendInput struct {
	SessionID domain.SessionID
	Text      string
}

type SendOutput struct {
	Session domain.SessionState
	Turn    domain.Turn
}

func (s *Service) Send(ctx context.Context, in SendInput) (*SendOutput, error) {
	ctrl, err := s.sessions.Get(in.SessionID)
	if err != nil {
		return nil, err
	}

	turn, err := ctrl.Send(ctx, in.Text)
	if err != nil {
		return nil, err
	}
	return &SendOutput{Session: ctrl.Snapshot(), Turn: turn}, nil
}

func (s *Service) Reset(ctx context.Context, id domain.SessionID) (domain.SessionState, error) {
	ctrl, err := s.sessions.Get(id)
	if err != nil {
		return domain.SessionState{}, err
	}

	observability.LoggerFromContext(ctx).Info("session reset", "session_id", id)
	return ctrl.Reset(), nil
}

// Get returns the live controller, for snapshots and subscriptions.
func (s *Service) Get(_ context.Context, id domain.SessionID) (*Controller, error) {
	return s.sessions.Get(id)
}

// Close ends one session and releases its renders and subscribers.
func (s *Service) Close(ctx context.Context, id domain.SessionID) error {
	ctrl, err := s.sessions.Delete(id)
	if err != nil {
		return err
	}
	ctrl.Close()
	observability.LoggerFromContext(ctx).Info("session closed", "session_id", id)
	return nil
}

// Shutdown closes every session.
func (s *Service) Shutdown() {
	for _, ctrl := range s.sessions.Drain() {
		ctrl.Close()
	}
}
