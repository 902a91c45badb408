package conversation

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain/conversation"
)

// Sessions defines the session persistence contract.
type Sessions interface {
	Get(ctx context.Context, id string) (conversation.Session, error)
	Save(ctx context.Context, sess *conversation.Session) error
}
