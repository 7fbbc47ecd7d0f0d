package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/PabloGalante/mermaidbot/internal/app/conversation"
	"github.com/PabloGalante/mermaidbot/internal/domain"
	"github.com/PabloGalante/mermaidbot/internal/observability"
)

type Server struct {
	svc *conversation.Service
}

func NewServer(svc *conversation.Service) http.Handler {
	s := &Server{svc: svc}
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealthz)

	// /sessions → create session (POST)
	mux.HandleFunc("/sessions", s.handleSessions)

	// /sessions/{id}          → GET snapshot, DELETE close
	// /sessions/{id}/messages → POST send message
	// /sessions/{id}/reset    → POST new session state
	// /sessions/{id}/diagram  → GET current diagram source and preview
	// /sessions/{id}/events   → GET websocket stream of snapshots
	mux.HandleFunc("/sessions/", s.handleSessionWithID)

	return chainMiddlewares(mux, withLogging, withCORS, withRequestID)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type sessionResponse struct {
	Session domain.SessionState `json:"session"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type sendMessageResponse struct {
	Session domain.SessionState `json:"session"`
	Turn    domain.Turn         `json:"turn"`
}

type diagramResponse struct {
	Source  string                `json:"source"`
	Preview *domain.RenderOutcome `json:"preview,omitempty"`
}

// ─────────────────────────────────────────────
// Basic routing
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// /sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateSession(w, r)
	default:
		methodNotAllowed(w)
	}
}

// /sessions/{id}[/action]
func (s *Server) handleSessionWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.Split(path, "/")
	id := domain.SessionID(parts[0])

	if id == "" || len(parts) > 2 {
		http.NotFound(w, r)
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.handleGetSession(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		s.handleCloseSession(w, r, id)
	case action == "messages" && r.Method == http.MethodPost:
		s.handleSendMessage(w, r, id)
	case action == "reset" && r.Method == http.MethodPost:
		s.handleReset(w, r, id)
	case action == "diagram" && r.Method == http.MethodGet:
		s.handleDiagram(w, r, id)
	case action == "events" && r.Method == http.MethodGet:
		s.handleEvents(w, r, id)
	case action == "" || action == "messages" || action == "reset" || action == "diagram" || action == "events":
		methodNotAllowed(w)
	default:
		http.NotFound(w, r)
	}
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.StartSession(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Session: out.Session})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	ctrl, err := s.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: ctrl.Snapshot()})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	if err := s.svc.Close(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	out, err := s.svc.Send(r.Context(), conversation.SendInput{
		SessionID: id,
		Text:      req.Text,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sendMessageResponse{
		Session: out.Session,
		Turn:    out.Turn,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	state, err := s.svc.Reset(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: state})
}

func (s *Server) handleDiagram(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	ctrl, err := s.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap := ctrl.Snapshot()
	writeJSON(w, http.StatusOK, diagramResponse{
		Source:  snap.LatestDiagramSource,
		Preview: snap.Preview,
	})
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes. Anything unexpected is
// logged and answered with a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, conversation.ErrClosed):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
	case errors.Is(err, domain.ErrEmptyInput):
		badRequest(w, "text is required")
	case errors.Is(err, domain.ErrTurnInProgress), errors.Is(err, conversation.ErrSessionReset):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		observability.LoggerFromContext(r.Context()).Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"error": "method not allowed",
	})
}
