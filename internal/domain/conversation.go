package domain

// Message is one entry of a session transcript (user or assistant).
// Messages are never modified after they are appended.
type Message struct {
	ID            MessageID `json:"id"`
	Role          Role      `json:"role"`
	Content       string    `json:"content"`
	DiagramSource string    `json:"diagram_source,omitempty"`
	CreatedAt     Timestamp `json:"created_at"`
}

// Transcript is the ordered message history of one session.
type Transcript []Message

// Clone returns a copy that shares no backing array with t.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}

// SessionState is everything a front-end needs to draw one session.
type SessionState struct {
	ID                  SessionID      `json:"id"`
	Phase               Phase          `json:"phase"`
	Transcript          Transcript     `json:"transcript"`
	Pending             bool           `json:"pending"`
	LatestDiagramSource string         `json:"latest_diagram_source,omitempty"`
	Preview             *RenderOutcome `json:"preview,omitempty"`

	// Epoch changes on every reset so late results from an older session can be recognised.
	Epoch uint64 `json:"epoch"`
}

// Snapshot returns a deep copy safe to hand to another goroutine.
func (s *SessionState) Snapshot() SessionState {
	out := *s
	out.Transcript = s.Transcript.Clone()
	if s.Preview != nil {
		p := *s.Preview
		out.Preview = &p
	}
	return out
}

// Turn is the pair of messages produced by a single Send.
type Turn struct {
	UserMessage      *Message `json:"user_message,omitempty"`
	AssistantMessage Message  `json:"assistant_message"`
}
