// Package conversation holds the session aggregate: an ordered sequence of
// turns with a bounded history and an explicit lifecycle state machine.
package conversation

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// State is the session lifecycle state.
type State string

// Session states: Empty -> Active -> Summarizing -> Active (loop) -> Expired.
const (
	StateEmpty       State = "empty"
	StateActive      State = "active"
	StateSummarizing State = "summarizing"
	StateExpired     State = "expired"
)

// Turn is one completed question-answer exchange.
type Turn struct {
	userQuery    string
	reformulated string
	chunkIDs     []string
	answer       string
	citations    []domain.Citation
	at           time.Time
}

// NewTurn creates a completed turn.
func NewTurn(
	userQuery, reformulated string, chunkIDs []string,
	answer string, citations []domain.Citation, at time.Time,
) Turn {
	return Turn{
		userQuery:    userQuery,
		reformulated: reformulated,
		chunkIDs:     chunkIDs,
		answer:       answer,
		citations:    citations,
		at:           at,
	}
}

// UserQuery returns the raw user query.
func (t *Turn) UserQuery() string { return t.userQuery }

// Reformulated returns the self-contained reformulated query.
func (t *Turn) Reformulated() string { return t.reformulated }

// ChunkIDs returns the identities of the chunks retrieved for this turn.
func (t *Turn) ChunkIDs() []string { return t.chunkIDs }

// Answer returns the synthesized answer text.
func (t *Turn) Answer() string { return t.answer }

// Citations returns the resolved citations.
func (t *Turn) Citations() []domain.Citation { return t.citations }

// At returns the turn completion time.
func (t *Turn) At() time.Time { return t.at }

// size approximates the turn's contribution to the history budget.
func (t *Turn) size() int {
	return len(t.userQuery) + len(t.reformulated) + len(t.answer)
}

// Session is the conversation aggregate. All mutation goes through the
// owning memory service, which serializes writers per session identity.
type Session struct {
	id         string
	audience   domain.Audience
	state      State
	turns      []Turn
	summary    string
	lastActive time.Time
}

// New creates an empty session.
func New(id string, audience domain.Audience) (Session, error) {
	if id == "" {
		return Session{}, fmt.Errorf("session ID is required: %w", domain.ErrValidation)
	}
	return Session{id: id, audience: audience, state: StateEmpty}, nil
}

// Reconstruct creates a Session without validation (storage hydration).
func Reconstruct(
	id string, audience domain.Audience, state State,
	turns []Turn, summary string, lastActive time.Time,
) Session {
	return Session{
		id: id, audience: audience, state: state,
		turns: turns, summary: summary, lastActive: lastActive,
	}
}

// ID returns the session identity.
func (s *Session) ID() string { return s.id }

// Audience returns the audience the session is scoped to.
func (s *Session) Audience() domain.Audience { return s.audience }

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// Turns returns the retained turn history, oldest first.
func (s *Session) Turns() []Turn { return s.turns }

// Summary returns the running summary of collapsed turns.
func (s *Session) Summary() string { return s.summary }

// LastActive returns the time of the most recent turn.
func (s *Session) LastActive() time.Time { return s.lastActive }

// RecentTurns returns up to n most recent turns, oldest first.
func (s *Session) RecentTurns(n int) []Turn {
	if n <= 0 || len(s.turns) == 0 {
		return nil
	}
	if n > len(s.turns) {
		n = len(s.turns)
	}
	return s.turns[len(s.turns)-n:]
}

// HistorySize returns the approximate character size of the retained history.
func (s *Session) HistorySize() int {
	total := len(s.summary)
	for i := range s.turns {
		total += s.turns[i].size()
	}
	return total
}

// Append records a completed turn and activates the session.
func (s *Session) Append(t Turn) {
	s.turns = append(s.turns, t)
	s.state = StateActive
	if t.at.After(s.lastActive) {
		s.lastActive = t.at
	}
}

// NeedsCollapse reports whether the history exceeds the size budget and the
// oldest turns must be folded into the running summary.
func (s *Session) NeedsCollapse(budget int) bool {
	return budget > 0 && s.HistorySize() > budget && len(s.turns) > 1
}

// BeginCollapse enters the Summarizing state and detaches the oldest turns,
// keeping the most recent keep turns in history. The caller folds the
// returned turns into a summary and completes with FinishCollapse; the
// turns are never silently dropped.
func (s *Session) BeginCollapse(keep int) []Turn {
	if keep < 1 {
		keep = 1
	}
	if keep >= len(s.turns) {
		return nil
	}
	s.state = StateSummarizing
	collapsed := s.turns[:len(s.turns)-keep]
	s.turns = append([]Turn(nil), s.turns[len(s.turns)-keep:]...)
	return collapsed
}

// FinishCollapse installs the new running summary and returns to Active.
func (s *Session) FinishCollapse(summary string) {
	s.summary = summary
	s.state = StateActive
}

// ExpiredBy reports whether the session passed the inactivity timeout at now.
func (s *Session) ExpiredBy(now time.Time, idle time.Duration) bool {
	if s.state == StateEmpty || idle <= 0 {
		return false
	}
	return now.Sub(s.lastActive) > idle
}

// Expire transitions the session to Expired. The next query on this
// identity starts a fresh session with no carried context.
func (s *Session) Expire() {
	s.state = StateExpired
}
