package httpadapter

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PabloGalante/mermaidbot/internal/domain"
	"github.com/PabloGalante/mermaidbot/internal/observability"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Same open policy as withCORS.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleEvents streams a session snapshot on connect and after every change.
// Intermediate states may be skipped for slow clients; the last one is
// always delivered.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, id domain.SessionID) {
	ctrl, err := s.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log := observability.LoggerFromContext(r.Context()).With("session_id", id)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}

	updates, cancel := ctrl.Subscribe()
	defer cancel()

	// Incoming frames are ignored; reading is needed to see the client go away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
	defer func() {
		_ = conn.Close()
		<-gone
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	log.Info("event stream opened")
	for {
		select {
		case snap, ok := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				log.Debug("event stream write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			log.Info("event stream closed by client")
			return
		}
	}
}
