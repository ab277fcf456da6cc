package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Segment is a contiguous audio buffer awaiting transcription, per
// spec.md §3.
type Segment struct {
	Samples   []float32
	StartedAt time.Time
	SpeakerID *int
}

// Insight is the LLM's per-segment output plus its source transcription
// and speaker annotation, per spec.md §3.
type Insight struct {
	Timestamp      time.Time
	Transcription  string
	InsightText    string
	DurationMs     int64
	SpeakerID      *int
	SpeakerLabel   string
}

// ListeningSession is the Active Listening aggregate: a single
// long-running meeting/session accumulating Insights in order.
// Exclusively owned by the Active Listening sub-machine; all other
// consumers receive immutable snapshots (spec.md §3 Ownership).
type ListeningSession struct {
	mu sync.Mutex

	ID        string
	StartedAt time.Time
	EndedAt   *time.Time
	Topic     string
	Insights  []Insight
}

// NewListeningSession starts a new session. Invariant S1 (only one
// session active at a time) is enforced by the Active Listening
// sub-machine, not by this type.
func NewListeningSession(topic string) *ListeningSession {
	return &ListeningSession{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Topic:     topic,
	}
}

// AppendInsight appends in segment-completion order. Appends after
// Close are still accepted (invariant SM3: ended_at means "no new
// segments", not "no more insights").
func (s *ListeningSession) AppendInsight(ins Insight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Insights = append(s.Insights, ins)
}

// Close sets EndedAt exactly once; subsequent calls are no-ops
// (invariant S2).
func (s *ListeningSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EndedAt != nil {
		return
	}
	now := time.Now()
	if now.Before(s.StartedAt) {
		now = s.StartedAt
	}
	s.EndedAt = &now
}

// IsClosed reports whether Close has been called.
func (s *ListeningSession) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.EndedAt != nil
}

// SnapshotInsights returns an immutable copy of the insight list.
func (s *ListeningSession) SnapshotInsights() []Insight {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Insight, len(s.Insights))
	copy(out, s.Insights)
	return out
}

// LastN returns the last n insights, oldest first, for the
// {{previous_context}} prompt variable (default n=3 per
// context_window_size).
func (s *ListeningSession) LastN(n int) []Insight {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= len(s.Insights) {
		n = len(s.Insights)
	}
	out := make([]Insight, n)
	copy(out, s.Insights[len(s.Insights)-n:])
	return out
}

// Turn is one question/response pair in an Ask AI conversation.
type Turn struct {
	ID        string
	Question  string
	Response  string
	Timestamp time.Time
	AudioRef  string
}

// Conversation is the Ask AI aggregate (spec.md §3).
type Conversation struct {
	mu sync.Mutex

	ID        string
	Turns     []Turn
	CreatedAt time.Time
	UpdatedAt time.Time
	Title     string
}

// NewConversation starts an empty conversation.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddTurn appends a turn, seeds Title from the first question
// (invariant A1), and sets UpdatedAt to the turn's timestamp
// (invariant A2).
func (c *Conversation) AddTurn(question, response string, audioRef string) Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := Turn{
		ID:        uuid.NewString(),
		Question:  question,
		Response:  response,
		Timestamp: time.Now(),
		AudioRef:  audioRef,
	}
	c.Turns = append(c.Turns, t)
	if c.Title == "" {
		c.Title = titleFrom(question)
	}
	c.UpdatedAt = t.Timestamp
	return t
}

func titleFrom(question string) string {
	const maxLen = 60
	if len(question) <= maxLen {
		return question
	}
	return question[:maxLen]
}

// LastNTurns returns the last n turns, oldest first, for the context
// window fed back into the LLM (default n=10).
func (c *Conversation) LastNTurns(n int) []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n >= len(c.Turns) {
		n = len(c.Turns)
	}
	out := make([]Turn, n)
	copy(out, c.Turns[len(c.Turns)-n:])
	return out
}

// TurnCount returns the number of turns so far.
func (c *Conversation) TurnCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Turns)
}

// ActionItem is one task extracted from a meeting summary.
type ActionItem struct {
	Description string
	Assignee    string
	Deadline    string
}

// MeetingSummary is the supplemental end-of-session artifact described
// in SPEC_FULL.md, grounded on the original source's MeetingSummary.
type MeetingSummary struct {
	SessionID        string
	ExecutiveSummary string
	Decisions        []string
	ActionItems      []ActionItem
	Topics           []string
	FollowUps        []string
	DurationMinutes  float64
	GeneratedAt      time.Time
}
