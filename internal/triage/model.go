package triage

import (
	"sync"
	"time"

	"symptom-triage/internal/assistant"
	"symptom-triage/internal/catalog"
	"symptom-triage/internal/form"
	"symptom-triage/internal/prediction"
	"symptom-triage/internal/result"

	"github.com/google/uuid"
)

// Session is one open triage page. It exclusively owns the symptom form, the
// result region and the assistant; nothing survives it.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	mu         sync.Mutex
	form       *form.Form
	result     *result.View
	attrs      prediction.Attributes
	reported   []catalog.SymptomID
	inFlight   bool
	generation uint64
	lastSeen   time.Time

	assistant *assistant.Session
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// AssistantSnapshot is the chat panel's state.
type AssistantSnapshot struct {
	Visible      bool                   `json:"visible"`
	Conversation assistant.Conversation `json:"conversation"`
	Messages     []assistant.Message    `json:"messages"`
}

// Snapshot is a consistent copy of a session for rendering.
type Snapshot struct {
	ID         string                `json:"session_id"`
	Controls   []form.Control        `json:"controls"`
	Checked    int                   `json:"checked"`
	Attributes prediction.Attributes `json:"attributes"`
	Result     *result.View          `json:"result"`
	Submitting bool                  `json:"submitting"`
	Assistant  AssistantSnapshot     `json:"assistant"`
}

func (s *Session) snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		ID:         s.ID.String(),
		Controls:   s.form.Controls(),
		Checked:    s.form.Selection().Count(),
		Attributes: s.attrs,
		Submitting: s.inFlight,
	}
	if s.result != nil {
		v := *s.result
		snap.Result = &v
	}
	s.mu.Unlock()

	snap.Assistant = AssistantSnapshot{
		Visible:      s.assistant.Visible(),
		Conversation: s.assistant.State(),
		Messages:     s.assistant.Transcript(),
	}
	return snap
}
