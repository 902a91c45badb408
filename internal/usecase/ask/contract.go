package ask

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain"
	domconv "github.com/kailas-cloud/ragdex/internal/domain/conversation"
	"github.com/kailas-cloud/ragdex/internal/index"
	"github.com/kailas-cloud/ragdex/internal/usecase/retrieve"
)

// Memory is the conversation side of a turn: session locking, loading,
// query reformulation, and persistence.
type Memory interface {
	Acquire(sessionID string) (release func(), err error)
	Load(ctx context.Context, sessionID string, audience domain.Audience) (domconv.Session, error)
	Reformulate(sess *domconv.Session, rawQuery string) string
	Complete(ctx context.Context, sess *domconv.Session, turn domconv.Turn) error
}

// Retriever returns ranked chunks visible to the request's audience.
type Retriever interface {
	Retrieve(ctx context.Context, req *retrieve.Request) ([]index.Entry, error)
}

// Synthesizer produces a grounded answer from retrieved chunks.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, chunks []index.Entry, summary string) (string, error)
}

// Citer maps answer text back to the retrieval set.
type Citer interface {
	Resolve(ctx context.Context, answer string, retrieved []index.Entry) []domain.Citation
}
