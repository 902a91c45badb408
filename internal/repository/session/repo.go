// Package session persists conversation sessions as JSON values with a
// sliding TTL, so abandoned sessions vanish from storage on their own.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/conversation"
)

const keyPrefix = "ragdex:session:"

// store is the consumer interface for session persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Repo stores sessions in a key-value store.
type Repo struct {
	store store
	ttl   time.Duration
}

// New creates a session repository. The TTL is refreshed on every save.
func New(s store, ttl time.Duration) *Repo {
	return &Repo{store: s, ttl: ttl}
}

// Get loads a session. A missing key yields ErrKeyNotFound from the store,
// surfaced unwrapped so callers can start a fresh session.
func (r *Repo) Get(ctx context.Context, id string) (conversation.Session, error) {
	data, err := r.store.Get(ctx, keyPrefix+id)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return conversation.Session{}, db.ErrKeyNotFound
		}
		return conversation.Session{}, fmt.Errorf("get session %s: %w", id, err)
	}

	var dto sessionDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return conversation.Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return dto.toDomain(id), nil
}

// Save stores a session and resets its TTL.
func (r *Repo) Save(ctx context.Context, sess *conversation.Session) error {
	data, err := json.Marshal(buildDTO(sess))
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID(), err)
	}
	if err := r.store.SetWithTTL(ctx, keyPrefix+sess.ID(), data, r.ttl); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID(), err)
	}
	return nil
}

// sessionDTO is the stored JSON form of a session.
type sessionDTO struct {
	Audience   string    `json:"audience"`
	State      string    `json:"state"`
	Turns      []turnDTO `json:"turns,omitempty"`
	Summary    string    `json:"summary,omitempty"`
	LastActive time.Time `json:"last_active"`
}

type turnDTO struct {
	UserQuery    string        `json:"user_query"`
	Reformulated string        `json:"reformulated,omitempty"`
	ChunkIDs     []string      `json:"chunk_ids,omitempty"`
	Answer       string        `json:"answer"`
	Citations    []citationDTO `json:"citations,omitempty"`
	At           time.Time     `json:"at"`
}

type citationDTO struct {
	Marker     string `json:"marker"`
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Version    int    `json:"version"`
}

func buildDTO(sess *conversation.Session) sessionDTO {
	turns := sess.Turns()
	dto := sessionDTO{
		Audience:   string(sess.Audience()),
		State:      string(sess.State()),
		Summary:    sess.Summary(),
		LastActive: sess.LastActive().UTC(),
		Turns:      make([]turnDTO, 0, len(turns)),
	}
	for i := range turns {
		t := &turns[i]
		citations := t.Citations()
		td := turnDTO{
			UserQuery:    t.UserQuery(),
			Reformulated: t.Reformulated(),
			ChunkIDs:     t.ChunkIDs(),
			Answer:       t.Answer(),
			At:           t.At().UTC(),
			Citations:    make([]citationDTO, 0, len(citations)),
		}
		for _, c := range citations {
			td.Citations = append(td.Citations, citationDTO{
				Marker:     c.Marker(),
				ChunkID:    c.ChunkID(),
				DocumentID: c.DocumentID(),
				Title:      c.Title(),
				Version:    c.Version(),
			})
		}
		dto.Turns = append(dto.Turns, td)
	}
	return dto
}

func (dto *sessionDTO) toDomain(id string) conversation.Session {
	turns := make([]conversation.Turn, 0, len(dto.Turns))
	for _, td := range dto.Turns {
		citations := make([]domain.Citation, 0, len(td.Citations))
		for _, cd := range td.Citations {
			citations = append(citations, domain.NewCitation(
				cd.Marker, cd.ChunkID, cd.DocumentID, cd.Title, cd.Version,
			))
		}
		turns = append(turns, conversation.NewTurn(
			td.UserQuery, td.Reformulated, td.ChunkIDs, td.Answer, citations, td.At,
		))
	}
	return conversation.Reconstruct(
		id, domain.Audience(dto.Audience), conversation.State(dto.State),
		turns, dto.Summary, dto.LastActive,
	)
}
