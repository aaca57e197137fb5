// Package chat holds conversation state owned by a single session.
package chat

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks a turn authored by the user.
	RoleUser Role = "user"
	// RoleAssistant marks a turn authored by the assistant.
	RoleAssistant Role = "assistant"
)

// Turn is one conversation message.
type Turn struct {
	Role    Role
	Content string
}

// Detection is a classifier result staged for the next chat turn.
// It is consumed at most once, then discarded.
type Detection struct {
	ClassName  string
	KBSlug     string
	HumanName  string
	Confidence float64 // percentage
}

// Session owns an ordered, append-only sequence of turns plus at most
// one pending detection. A session has a single writer; requests for
// the same session are not issued concurrently, so no locking is done
// here.
type Session struct {
	id      string
	turns   []Turn
	pending *Detection
}

// NewSession creates an empty session.
func NewSession(id string) *Session {
	return &Session{id: id}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Turns returns a copy of the conversation history in order.
func (s *Session) Turns() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// AppendUser appends a user turn.
func (s *Session) AppendUser(content string) {
	s.turns = append(s.turns, Turn{Role: RoleUser, Content: content})
}

// AppendAssistant appends an assistant turn.
func (s *Session) AppendAssistant(content string) {
	s.turns = append(s.turns, Turn{Role: RoleAssistant, Content: content})
}

// StageDetection stores a detection for the next turn, replacing any
// previous one.
func (s *Session) StageDetection(d Detection) {
	s.pending = &d
}

// TakeDetection consumes the pending detection, if any.
func (s *Session) TakeDetection() (Detection, bool) {
	if s.pending == nil {
		return Detection{}, false
	}
	d := *s.pending
	s.pending = nil
	return d, true
}

// Reset clears the history and any pending detection.
func (s *Session) Reset() {
	s.turns = nil
	s.pending = nil
}
