package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/index"
)

type mockIndex struct {
	queryFn func(ctx context.Context, vector []float32, topK int, f index.Filter) ([]index.Entry, error)
}

func (m *mockIndex) Query(ctx context.Context, vector []float32, topK int, f index.Filter) ([]index.Entry, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, vector, topK, f)
	}
	return nil, nil
}

type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
}

func (m *mockEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	return m.result, m.err
}

func mustAudiences(t *testing.T, tags ...string) domain.AudienceSet {
	t.Helper()
	set, err := domain.NewAudienceSet(tags...)
	if err != nil {
		t.Fatalf("NewAudienceSet: %v", err)
	}
	return set
}

func entry(t *testing.T, doc string, version, seq int, score float64, tags ...string) index.Entry {
	t.Helper()
	return index.Entry{
		ChunkID:    domain.ChunkID(doc, version, seq),
		Score:      score,
		DocumentID: doc,
		Version:    version,
		Seq:        seq,
		Text:       "text",
		Audiences:  mustAudiences(t, tags...),
	}
}

func newTestService(t *testing.T, opts Options) (*Service, *mockIndex) {
	t.Helper()
	idx := &mockIndex{}
	embed := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1, 0, 0}}}
	return New(idx, embed, opts), idx
}

func TestRetrieveValidation(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
	}{
		{"unknown audience", Request{Query: "q", Audience: "wizard"}},
		{"empty query", Request{Query: "", Audience: domain.AudienceCustomer}},
		{"version pin without document", Request{Query: "q", Audience: domain.AudienceCustomer, Version: 2}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Retrieve(ctx, &tc.req)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("got %v, want ErrValidation", err)
			}
		})
	}
}

func TestRetrieveOverFetchesAndPassesFilter(t *testing.T) {
	svc, idx := newTestService(t, Options{})
	ctx := context.Background()

	var gotTopK int
	var gotFilter index.Filter
	idx.queryFn = func(_ context.Context, _ []float32, topK int, f index.Filter) ([]index.Entry, error) {
		gotTopK = topK
		gotFilter = f
		return nil, nil
	}

	_, err := svc.Retrieve(ctx, &Request{Query: "q", Audience: domain.AudienceAdmin, TopK: 4})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if gotTopK != 12 {
		t.Errorf("index topK %d, want 12 (3x over-fetch)", gotTopK)
	}
	if gotFilter.Audience != domain.AudienceAdmin {
		t.Errorf("filter audience %q", gotFilter.Audience)
	}
}

func TestRetrieveEmptyIndex(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	results, err := svc.Retrieve(context.Background(), &Request{Query: "q", Audience: domain.AudienceCustomer})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results from empty index", len(results))
	}
}

func TestRetrieveScopeViolationIsFatal(t *testing.T) {
	svc, idx := newTestService(t, Options{})

	idx.queryFn = func(_ context.Context, _ []float32, _ int, _ index.Filter) ([]index.Entry, error) {
		return []index.Entry{
			entry(t, "public-guide", 1, 0, 0.9, "customer"),
			entry(t, "internal-runbook", 1, 0, 0.8, "field-engineer"),
		}, nil
	}

	_, err := svc.Retrieve(context.Background(), &Request{Query: "q", Audience: domain.AudienceCustomer})
	if !errors.Is(err, domain.ErrScopeViolation) {
		t.Fatalf("got %v, want ErrScopeViolation", err)
	}
}

func TestRetrievePerDocumentCap(t *testing.T) {
	svc, idx := newTestService(t, Options{MaxPerDocument: 2})

	idx.queryFn = func(_ context.Context, _ []float32, _ int, _ index.Filter) ([]index.Entry, error) {
		return []index.Entry{
			entry(t, "guide", 1, 0, 0.95, "customer"),
			entry(t, "guide", 1, 1, 0.93, "customer"),
			entry(t, "guide", 1, 2, 0.91, "customer"),
			entry(t, "faq", 1, 0, 0.90, "customer"),
		}, nil
	}

	results, err := svc.Retrieve(context.Background(), &Request{Query: "q", Audience: domain.AudienceCustomer, TopK: 5})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3 (cap dropped one)", len(results))
	}
	counts := map[string]int{}
	for _, r := range results {
		counts[r.DocumentID]++
	}
	if counts["guide"] != 2 || counts["faq"] != 1 {
		t.Errorf("per-document counts %v", counts)
	}
}

func TestRetrieveVersionBoostPrefersNewest(t *testing.T) {
	svc, idx := newTestService(t, Options{VersionBoost: 0.05})

	// Historical query: an older version scores marginally higher.
	idx.queryFn = func(_ context.Context, _ []float32, _ int, _ index.Filter) ([]index.Entry, error) {
		return []index.Entry{
			entry(t, "guide", 1, 0, 0.90, "customer"),
			entry(t, "guide", 2, 0, 0.88, "customer"),
		}, nil
	}

	results, err := svc.Retrieve(context.Background(), &Request{
		Query: "q", Audience: domain.AudienceCustomer,
		DocumentID: "guide", IncludeHistorical: true,
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if results[0].Version != 2 {
		t.Errorf("top result version %d, want boosted 2", results[0].Version)
	}
}

func TestRetrieveTruncatesToTopK(t *testing.T) {
	svc, idx := newTestService(t, Options{MaxPerDocument: 10})

	idx.queryFn = func(_ context.Context, _ []float32, _ int, _ index.Filter) ([]index.Entry, error) {
		var entries []index.Entry
		for seq := 0; seq < 9; seq++ {
			entries = append(entries, entry(t, "guide", 1, seq, 0.9-float64(seq)*0.01, "customer"))
		}
		return entries, nil
	}

	results, err := svc.Retrieve(context.Background(), &Request{Query: "q", Audience: domain.AudienceCustomer, TopK: 3})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Seq != 0 || results[2].Seq != 2 {
		t.Errorf("kept seqs %d..%d, want best-ranked 0..2", results[0].Seq, results[2].Seq)
	}
}

func TestRetrieveEmbedderFailure(t *testing.T) {
	idx := &mockIndex{}
	embed := &mockEmbedder{err: errors.New("provider down")}
	svc := New(idx, embed, Options{})

	_, err := svc.Retrieve(context.Background(), &Request{Query: "q", Audience: domain.AudienceCustomer})
	if err == nil {
		t.Fatal("expected embedder error")
	}
}
