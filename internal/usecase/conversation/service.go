// Package conversation manages per-session memory: loading and expiring
// sessions, serializing turns per session identity, reformulating queries
// against recent history, and folding old turns into a running summary.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain"
	domconv "github.com/kailas-cloud/ragdex/internal/domain/conversation"
	"github.com/kailas-cloud/ragdex/internal/logger"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// Options tune memory behavior.
type Options struct {
	// Window is how many recent turns reformulation may look at. Zero means 3.
	Window int
	// HistoryBudget caps the approximate character size of retained history
	// before old turns are folded into the summary. Zero means 4096.
	HistoryBudget int
	// KeepRecent is how many turns survive a collapse. Zero means 2.
	KeepRecent int
	// IdleTimeout expires a session after inactivity. Zero means 30 minutes.
	IdleTimeout time.Duration
}

// Service is the conversation memory.
type Service struct {
	sessions Sessions
	opts     Options
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock is a keyed mutex entry. refs counts the goroutines holding a
// reference, guarded by Service.mu; the entry is pruned when it drops to zero.
type sessionLock struct {
	sync.Mutex
	refs int
}

// New creates a conversation memory service.
func New(sessions Sessions, opts Options) *Service {
	if opts.Window <= 0 {
		opts.Window = 3
	}
	if opts.HistoryBudget <= 0 {
		opts.HistoryBudget = 4096
	}
	if opts.KeepRecent <= 0 {
		opts.KeepRecent = 2
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	return &Service{
		sessions: sessions,
		opts:     opts,
		now:      time.Now,
		locks:    make(map[string]*sessionLock),
	}
}

// Acquire serializes turns per session identity. A second concurrent turn on
// the same session fails with ErrSessionBusy instead of queueing; turns on
// different sessions are independent. The returned release must be called
// once the turn completes. Lock entries are pruned once no turn references
// them, so the map tracks in-flight sessions rather than all sessions ever seen.
func (s *Service) Acquire(sessionID string) (release func(), err error) {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.mu.Unlock()

	if !l.TryLock() {
		s.unref(sessionID, l)
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionBusy)
	}
	return func() {
		l.Unlock()
		s.unref(sessionID, l)
	}, nil
}

// unref drops one reference to a lock entry, removing it when unreferenced.
func (s *Service) unref(sessionID string, l *sessionLock) {
	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, sessionID)
	}
	s.mu.Unlock()
}

// Load returns the session for an identity, starting a fresh one when none
// exists or the stored one expired. Expired sessions carry no context into
// the new one. A live session scoped to a different audience is never
// continued: its summary and history would leak grounding across the
// audience boundary, so the load fails with ErrScopeViolation.
func (s *Service) Load(ctx context.Context, sessionID string, audience domain.Audience) (domconv.Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domconv.New(sessionID, audience)
		}
		return domconv.Session{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	if sess.State() != domconv.StateExpired && sess.ExpiredBy(s.now(), s.opts.IdleTimeout) {
		sess.Expire()
		if err := s.sessions.Save(ctx, &sess); err != nil {
			logger.FromContext(ctx).Warn("Failed to persist session expiry",
				zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	if sess.State() == domconv.StateExpired {
		logger.FromContext(ctx).Debug("Session expired, starting fresh",
			zap.String("session_id", sessionID))
		return domconv.New(sessionID, audience)
	}

	if sess.Audience() != audience {
		return domconv.Session{}, fmt.Errorf(
			"session %s is scoped to audience %s: %w",
			sessionID, sess.Audience(), domain.ErrScopeViolation,
		)
	}
	return sess, nil
}

// Reformulate resolves pronouns and ellipsis in the raw query against the
// recent turns, producing a self-contained query. Pure function of the raw
// query and bounded history; the session is not mutated.
func (s *Service) Reformulate(sess *domconv.Session, rawQuery string) string {
	recent := sess.RecentTurns(s.opts.Window)
	if len(recent) == 0 || !needsContext(rawQuery) {
		return rawQuery
	}

	// Walk backwards to the nearest turn with a usable topic.
	for i := len(recent) - 1; i >= 0; i-- {
		prev := recent[i].Reformulated()
		if prev == "" {
			prev = recent[i].UserQuery()
		}
		if topic := topicWords(prev); len(topic) > 0 {
			return rawQuery + " (about " + strings.Join(topic, " ") + ")"
		}
	}
	return rawQuery
}

// Complete appends a finished turn, collapses history over budget, and
// persists the session.
func (s *Service) Complete(ctx context.Context, sess *domconv.Session, turn domconv.Turn) error {
	sess.Append(turn)

	if sess.NeedsCollapse(s.opts.HistoryBudget) {
		collapsed := sess.BeginCollapse(s.opts.KeepRecent)
		if len(collapsed) > 0 {
			sess.FinishCollapse(foldSummary(sess.Summary(), collapsed))
			metrics.SessionCollapsesTotal.Inc()
			logger.FromContext(ctx).Debug("Collapsed session history",
				zap.String("session_id", sess.ID()),
				zap.Int("turns", len(collapsed)),
			)
		} else {
			sess.FinishCollapse(sess.Summary())
		}
	}

	if err := s.sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("persist session %s: %w", sess.ID(), err)
	}
	return nil
}

// pronouns and ellipsis cues that make a query context-dependent.
var contextCues = map[string]struct{}{
	"it": {}, "its": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"them": {}, "they": {}, "he": {}, "she": {}, "him": {}, "her": {},
	"one": {}, "same": {}, "again": {}, "more": {},
}

// needsContext reports whether the query leans on conversation context.
func needsContext(query string) bool {
	words := strings.Fields(strings.ToLower(strings.TrimRight(query, "?!. ")))
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if _, ok := contextCues[strings.Trim(w, ",.;:?!")]; ok {
			return true
		}
	}
	// Very short follow-ups ("why", "and then") rarely stand alone.
	return len(words) <= 2
}

var stopWords = map[string]struct{}{
	"what": {}, "when": {}, "where": {}, "which": {}, "who": {}, "how": {},
	"why": {}, "does": {}, "do": {}, "did": {}, "is": {}, "are": {}, "was": {},
	"the": {}, "for": {}, "and": {}, "with": {}, "from": {}, "about": {},
	"can": {}, "could": {}, "should": {}, "would": {}, "will": {}, "there": {},
	"have": {}, "has": {}, "had": {}, "not": {}, "you": {}, "your": {},
}

// topicWords extracts the content words of a query, preserving order.
func topicWords(query string) []string {
	var topic []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ",.;:?!()\"'")
		if len(w) < 3 {
			continue
		}
		if _, ok := stopWords[w]; ok {
			continue
		}
		if _, ok := contextCues[w]; ok {
			continue
		}
		topic = append(topic, w)
	}
	if len(topic) > 6 {
		topic = topic[:6]
	}
	return topic
}

// foldSummary appends one line per collapsed turn to the running summary.
// Deterministic so collapse behavior is reproducible in tests.
func foldSummary(existing string, collapsed []domconv.Turn) string {
	var b strings.Builder
	b.WriteString(existing)
	for i := range collapsed {
		t := &collapsed[i]
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		q := t.Reformulated()
		if q == "" {
			q = t.UserQuery()
		}
		b.WriteString("Q: ")
		b.WriteString(q)
		b.WriteString(" A: ")
		b.WriteString(firstSentence(t.Answer()))
	}
	return b.String()
}

func firstSentence(text string) string {
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			return text[:i+1]
		}
	}
	if r := []rune(text); len(r) > 200 {
		return string(r[:200])
	}
	return text
}
