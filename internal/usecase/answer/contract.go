package answer

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Generator invokes the generative model. Treated as an untrusted external
// function with no latency or availability guarantee.
type Generator interface {
	Generate(ctx context.Context, prompt domain.Prompt) (domain.GenerationResult, error)
}
