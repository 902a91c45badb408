// Package ask orchestrates one question-answering turn: serialize the
// session, reformulate the query against recent history, retrieve scoped
// chunks, synthesize a grounded answer, resolve citations, and persist the
// turn.
package ask

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	domconv "github.com/kailas-cloud/ragdex/internal/domain/conversation"
	"github.com/kailas-cloud/ragdex/internal/logger"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	"github.com/kailas-cloud/ragdex/internal/usecase/retrieve"
)

// Request describes one conversational question. An empty SessionID starts a
// new conversation; the minted ID comes back in Result.SessionID.
type Request struct {
	SessionID string
	Audience  string
	Query     string
	TopK      int
}

// Result is the outcome of a turn.
type Result struct {
	Answer       string
	Citations    []domain.Citation
	Reformulated string
	SessionID    string
}

// Service orchestrates question-answering turns.
type Service struct {
	memory    Memory
	retriever Retriever
	synth     Synthesizer
	citer     Citer
	now       func() time.Time
}

// New creates the ask orchestrator.
func New(memory Memory, retriever Retriever, synth Synthesizer, citer Citer) *Service {
	return &Service{
		memory:    memory,
		retriever: retriever,
		synth:     synth,
		citer:     citer,
		now:       time.Now,
	}
}

// Ask runs one turn. A second concurrent turn on the same session fails with
// ErrSessionBusy. An empty retrieval is not an error: the turn completes with
// the canonical insufficient-knowledge answer and no citations.
func (s *Service) Ask(ctx context.Context, req *Request) (Result, error) {
	started := s.now()

	audience, err := domain.ParseAudience(req.Audience)
	if err != nil {
		metrics.AskRequestsTotal.WithLabelValues(req.Audience, "error").Inc()
		return Result{}, err
	}
	if req.Query == "" {
		metrics.AskRequestsTotal.WithLabelValues(req.Audience, "error").Inc()
		return Result{}, fmt.Errorf("query text is required: %w", domain.ErrValidation)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	release, err := s.memory.Acquire(sessionID)
	if err != nil {
		metrics.AskRequestsTotal.WithLabelValues(req.Audience, "busy").Inc()
		return Result{}, err
	}
	defer release()

	sess, err := s.memory.Load(ctx, sessionID, audience)
	if err != nil {
		metrics.AskRequestsTotal.WithLabelValues(req.Audience, "error").Inc()
		return Result{}, err
	}

	reformulated := s.memory.Reformulate(&sess, req.Query)

	chunks, err := s.retriever.Retrieve(ctx, &retrieve.Request{
		Query:    reformulated,
		Audience: audience,
		TopK:     req.TopK,
	})
	if err != nil {
		metrics.AskRequestsTotal.WithLabelValues(req.Audience, "error").Inc()
		return Result{}, err
	}

	answer, err := s.synth.Synthesize(ctx, reformulated, chunks, sess.Summary())
	if err != nil {
		metrics.AskRequestsTotal.WithLabelValues(req.Audience, "error").Inc()
		return Result{}, err
	}

	citations := s.citer.Resolve(ctx, answer, chunks)

	chunkIDs := make([]string, 0, len(chunks))
	for i := range chunks {
		chunkIDs = append(chunkIDs, chunks[i].ChunkID)
	}
	turn := domconv.NewTurn(req.Query, reformulated, chunkIDs, answer, citations, s.now())
	if err := s.memory.Complete(ctx, &sess, turn); err != nil {
		metrics.AskRequestsTotal.WithLabelValues(req.Audience, "error").Inc()
		return Result{}, err
	}

	metrics.AskRequestsTotal.WithLabelValues(req.Audience, "success").Inc()
	logger.FromContext(ctx).Info("Turn completed",
		zap.String("session_id", sessionID),
		zap.String("audience", req.Audience),
		zap.Int("chunks", len(chunks)),
		zap.Int("citations", len(citations)),
		zap.Duration("duration", s.now().Sub(started)),
	)

	return Result{
		Answer:       answer,
		Citations:    citations,
		Reformulated: reformulated,
		SessionID:    sessionID,
	}, nil
}
