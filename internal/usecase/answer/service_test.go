package answer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/index"
)

type mockGenerator struct {
	generateFn func(ctx context.Context, prompt domain.Prompt) (domain.GenerationResult, error)
	calls      int
}

func (m *mockGenerator) Generate(ctx context.Context, prompt domain.Prompt) (domain.GenerationResult, error) {
	m.calls++
	if m.generateFn != nil {
		return m.generateFn(ctx, prompt)
	}
	return domain.GenerationResult{Text: "answer [S1]"}, nil
}

func newTestService(gen *mockGenerator, opts Options) *Service {
	svc := New(gen, opts)
	svc.sleep = func(context.Context, time.Duration) error { return nil }
	return svc
}

func testChunks() []index.Entry {
	return []index.Entry{
		{ChunkID: "guide:v2:0", DocumentID: "guide", Version: 2, Seq: 0, Score: 0.9,
			Text: "Restart the gateway from the admin panel."},
		{ChunkID: "faq:v1:3", DocumentID: "faq", Version: 1, Seq: 3, Score: 0.8,
			Text: "The admin panel runs on port 8443."},
	}
}

func TestSynthesizeZeroChunks(t *testing.T) {
	gen := &mockGenerator{}
	svc := newTestService(gen, Options{})

	got, err := svc.Synthesize(context.Background(), "how do I restart?", nil, "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got != InsufficientAnswer {
		t.Errorf("got %q, want canonical insufficient answer", got)
	}
	if gen.calls != 0 {
		t.Errorf("model invoked %d times with empty grounding", gen.calls)
	}
}

func TestSynthesizePromptLayout(t *testing.T) {
	var prompt domain.Prompt
	gen := &mockGenerator{
		generateFn: func(_ context.Context, p domain.Prompt) (domain.GenerationResult, error) {
			prompt = p
			return domain.GenerationResult{Text: "Restart from the admin panel. [S1]"}, nil
		},
	}
	svc := newTestService(gen, Options{})

	got, err := svc.Synthesize(context.Background(),
		"how do I restart the gateway?", testChunks(), "user set up the gateway earlier")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got != "Restart from the admin panel. [S1]" {
		t.Errorf("answer %q", got)
	}

	if !strings.Contains(prompt.System, "cite") {
		t.Errorf("system prompt lacks citation instruction: %q", prompt.System)
	}
	u := prompt.User
	if !strings.Contains(u, "user set up the gateway earlier") {
		t.Error("summary missing from prompt")
	}
	s1 := strings.Index(u, "[S1] (guide v2)")
	s2 := strings.Index(u, "[S2] (faq v1)")
	if s1 < 0 || s2 < 0 || s1 > s2 {
		t.Errorf("sources not in rank order: s1=%d s2=%d", s1, s2)
	}
	if !strings.Contains(u, "Restart the gateway from the admin panel.") {
		t.Error("chunk text missing from prompt")
	}
	if !strings.HasSuffix(u, "Question: how do I restart the gateway?") {
		t.Errorf("prompt does not end with the question: %q", u[len(u)-60:])
	}
}

func TestSynthesizeRespectsPromptBudget(t *testing.T) {
	var prompt domain.Prompt
	gen := &mockGenerator{
		generateFn: func(_ context.Context, p domain.Prompt) (domain.GenerationResult, error) {
			prompt = p
			return domain.GenerationResult{Text: "ok [S1]"}, nil
		},
	}
	svc := newTestService(gen, Options{PromptBudget: 300})

	chunks := []index.Entry{
		{ChunkID: "a:v1:0", DocumentID: "a", Version: 1, Text: strings.Repeat("alpha ", 40)},
		{ChunkID: "b:v1:0", DocumentID: "b", Version: 1, Text: strings.Repeat("bravo ", 40)},
		{ChunkID: "c:v1:0", DocumentID: "c", Version: 1, Text: strings.Repeat("charlie ", 40)},
	}

	if _, err := svc.Synthesize(context.Background(), "q", chunks, ""); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if strings.Contains(prompt.User, "charlie") {
		t.Error("lowest-ranked source included despite exhausted budget")
	}
	if !strings.Contains(prompt.User, "alpha") {
		t.Error("highest-ranked source missing")
	}
}

func TestSynthesizeRetriesTransientFailure(t *testing.T) {
	gen := &mockGenerator{}
	gen.generateFn = func(context.Context, domain.Prompt) (domain.GenerationResult, error) {
		if gen.calls < 3 {
			return domain.GenerationResult{}, domain.ErrModelInvocation
		}
		return domain.GenerationResult{Text: "late answer [S1]"}, nil
	}
	svc := newTestService(gen, Options{Retry: RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond}})

	got, err := svc.Synthesize(context.Background(), "q", testChunks(), "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got != "late answer [S1]" || gen.calls != 3 {
		t.Errorf("answer %q after %d calls", got, gen.calls)
	}
}

func TestSynthesizePersistentFailure(t *testing.T) {
	gen := &mockGenerator{
		generateFn: func(context.Context, domain.Prompt) (domain.GenerationResult, error) {
			return domain.GenerationResult{}, domain.ErrModelInvocation
		},
	}
	svc := newTestService(gen, Options{Retry: RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond}})

	_, err := svc.Synthesize(context.Background(), "q", testChunks(), "")
	if !errors.Is(err, domain.ErrModelInvocation) {
		t.Fatalf("got %v, want ErrModelInvocation", err)
	}
	if gen.calls != 3 {
		t.Errorf("model called %d times, want 3", gen.calls)
	}
}

func TestSynthesizeNonTransientErrorFailsFast(t *testing.T) {
	gen := &mockGenerator{
		generateFn: func(context.Context, domain.Prompt) (domain.GenerationResult, error) {
			return domain.GenerationResult{}, errors.New("bad request")
		},
	}
	svc := newTestService(gen, Options{Retry: RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond}})

	_, err := svc.Synthesize(context.Background(), "q", testChunks(), "")
	if err == nil {
		t.Fatal("expected error")
	}
	if gen.calls != 1 {
		t.Errorf("model called %d times, want 1 (no retry)", gen.calls)
	}
}

func TestSynthesizeEmptyModelAnswer(t *testing.T) {
	gen := &mockGenerator{
		generateFn: func(context.Context, domain.Prompt) (domain.GenerationResult, error) {
			return domain.GenerationResult{Text: "   "}, nil
		},
	}
	svc := newTestService(gen, Options{})

	_, err := svc.Synthesize(context.Background(), "q", testChunks(), "")
	if !errors.Is(err, domain.ErrModelInvocation) {
		t.Fatalf("got %v, want ErrModelInvocation", err)
	}
}
