// Package answer implements response synthesis: a rank-ordered grounded
// prompt under a size budget, model invocation behind a retry policy, and
// the canonical insufficient-information reply when grounding is empty.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/index"
	"github.com/kailas-cloud/ragdex/internal/logger"
)

// InsufficientAnswer is returned verbatim when retrieval produced nothing to
// ground an answer on. The model is not invoked in that case.
const InsufficientAnswer = "I don't have enough information in the knowledge base to answer that."

const systemPrompt = "You are a support assistant answering strictly from the " +
	"provided sources. Every factual claim must cite its source with the " +
	"marker given in brackets, e.g. [S1]. If the sources do not contain the " +
	"answer, say so plainly instead of guessing."

// RetryPolicy bounds model invocation retries.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries. Zero means 3.
	MaxAttempts int
	// BaseBackoff is the delay before the second attempt, doubled after each
	// failure. Zero means 250ms.
	BaseBackoff time.Duration
}

// Options tune prompt construction.
type Options struct {
	// PromptBudget caps the character size of the sources block. Zero means
	// 6000.
	PromptBudget int
	Retry        RetryPolicy
}

// Service is the response synthesizer.
type Service struct {
	gen    Generator
	budget int
	retry  RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a synthesizer.
func New(gen Generator, opts Options) *Service {
	if opts.PromptBudget <= 0 {
		opts.PromptBudget = 6000
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 3
	}
	if opts.Retry.BaseBackoff <= 0 {
		opts.Retry.BaseBackoff = 250 * time.Millisecond
	}
	return &Service{
		gen:    gen,
		budget: opts.PromptBudget,
		retry:  opts.Retry,
		sleep:  sleepCtx,
	}
}

// Synthesize generates a grounded answer for the reformulated query. Zero
// chunks yields the canonical insufficient-information answer without a
// model call; persistent model failure surfaces as ErrModelInvocation.
func (s *Service) Synthesize(
	ctx context.Context, query string, chunks []index.Entry, summary string,
) (string, error) {
	if len(chunks) == 0 {
		return InsufficientAnswer, nil
	}

	prompt := domain.Prompt{
		System: systemPrompt,
		User:   s.buildUserPrompt(query, chunks, summary),
	}

	res, err := s.generateWithRetry(ctx, prompt)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		return "", fmt.Errorf("model returned an empty answer: %w", domain.ErrModelInvocation)
	}
	return text, nil
}

// buildUserPrompt lays out summary, sources in rank order under the budget,
// and the question. Sources are labeled [S<n>] in rank order so citations
// map back by position.
func (s *Service) buildUserPrompt(query string, chunks []index.Entry, summary string) string {
	var b strings.Builder

	if summary != "" {
		b.WriteString("Conversation so far:\n")
		b.WriteString(summary)
		b.WriteString("\n\n")
	}

	b.WriteString("Sources:\n")
	used := 0
	for i := range chunks {
		c := &chunks[i]
		header := "[S" + strconv.Itoa(i+1) + "] (" + c.DocumentID + " v" + strconv.Itoa(c.Version) + ")\n"
		text := c.Text
		if used+len(header)+len(text) > s.budget {
			remaining := s.budget - used - len(header)
			if remaining < 80 {
				break
			}
			text = truncateRunes(text, remaining)
		}
		b.WriteString(header)
		b.WriteString(text)
		b.WriteString("\n\n")
		used += len(header) + len(text)
	}

	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}

// generateWithRetry retries transient model failures with doubling backoff.
func (s *Service) generateWithRetry(ctx context.Context, prompt domain.Prompt) (domain.GenerationResult, error) {
	backoff := s.retry.BaseBackoff
	var lastErr error

	for attempt := 1; attempt <= s.retry.MaxAttempts; attempt++ {
		res, err := s.gen.Generate(ctx, prompt)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !errors.Is(err, domain.ErrModelInvocation) {
			return domain.GenerationResult{}, err
		}
		if attempt == s.retry.MaxAttempts {
			break
		}

		logger.FromContext(ctx).Warn("Model invocation failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if err := s.sleep(ctx, backoff); err != nil {
			return domain.GenerationResult{}, err
		}
		backoff *= 2
	}

	return domain.GenerationResult{}, fmt.Errorf(
		"model unreachable after %d attempts: %w", s.retry.MaxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncateRunes(text string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n])
}
