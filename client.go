// Package ragdex is the embedded SDK: it wires the full pipeline (chunking,
// embedding, indexing, retrieval, conversation memory, synthesis, citations)
// directly over a Valkey/Redis store, without the HTTP layer.
package ragdex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/ragdex/internal/chunker"
	"github.com/kailas-cloud/ragdex/internal/db"
	dbRedis "github.com/kailas-cloud/ragdex/internal/db/redis"
	"github.com/kailas-cloud/ragdex/internal/domain"
	indexRedis "github.com/kailas-cloud/ragdex/internal/index/redis"
	"github.com/kailas-cloud/ragdex/internal/repository/catalog"
	sessionrepo "github.com/kailas-cloud/ragdex/internal/repository/session"
	answeruc "github.com/kailas-cloud/ragdex/internal/usecase/answer"
	askuc "github.com/kailas-cloud/ragdex/internal/usecase/ask"
	citeuc "github.com/kailas-cloud/ragdex/internal/usecase/cite"
	conversationuc "github.com/kailas-cloud/ragdex/internal/usecase/conversation"
	documentuc "github.com/kailas-cloud/ragdex/internal/usecase/document"
	ingestuc "github.com/kailas-cloud/ragdex/internal/usecase/ingest"
	retrieveuc "github.com/kailas-cloud/ragdex/internal/usecase/retrieve"
)

const defaultReadinessTimeout = 10 * time.Second

// Client is the ragdex SDK entry point.
type Client struct {
	store       db.Store
	ingestSvc   *ingestuc.Service
	retrieveSvc *retrieveuc.Service
	askSvc      *askuc.Service
	documentSvc *documentuc.Service
}

// New creates a ragdex Client and connects to the database.
func New(opts ...Option) (*Client, error) {
	cfg := defaultClientConfig()
	for _, o := range opts {
		o(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("ragdex: database address required (use WithValkey or WithRedis)")
	}
	if cfg.embedder == nil {
		return nil, errors.New("ragdex: embedder required (use WithEmbedder)")
	}
	if cfg.generator == nil {
		return nil, errors.New("ragdex: generator required (use WithGenerator)")
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.addrs,
		Password: cfg.password,
	})
	if err != nil {
		return nil, fmt.Errorf("ragdex: create store: %w", err)
	}

	ctx := context.Background()
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("ragdex: database not ready: %w", err)
	}

	return wireClient(ctx, store, cfg)
}

func wireClient(ctx context.Context, store db.Store, cfg *clientConfig) (*Client, error) {
	embIndex := indexRedis.New(store, cfg.dimensions)
	if cfg.hnswM > 0 || cfg.hnswEFConstruct > 0 {
		embIndex = embIndex.WithHNSW(indexRedis.HNSWConfig{
			M:           cfg.hnswM,
			EFConstruct: cfg.hnswEFConstruct,
		})
	}
	if err := embIndex.EnsureIndex(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ragdex: ensure chunk index: %w", err)
	}

	splitter, err := chunker.New(cfg.chunkSize, cfg.chunkOverlap)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("ragdex: chunker: %w", err)
	}

	emb := &embedderAdapter{inner: cfg.embedder}
	gen := &generatorAdapter{inner: cfg.generator}

	catalogRepo := catalog.New(store)
	sessions := sessionrepo.New(store, cfg.sessionTTL)

	ingestSvc := ingestuc.New(catalogRepo, embIndex, splitter, emb)
	retrieveSvc := retrieveuc.New(embIndex, emb, retrieveuc.Options{
		MaxPerDocument: cfg.maxPerDocument,
		VersionBoost:   cfg.versionBoost,
	})
	memorySvc := conversationuc.New(sessions, conversationuc.Options{
		IdleTimeout: cfg.sessionIdle,
	})
	answerSvc := answeruc.New(gen, answeruc.Options{})
	askSvc := askuc.New(memorySvc, retrieveSvc, answerSvc, citeuc.New(catalogRepo))
	documentSvc := documentuc.New(catalogRepo, embIndex)

	return &Client{
		store:       store,
		ingestSvc:   ingestSvc,
		retrieveSvc: retrieveSvc,
		askSvc:      askSvc,
		documentSvc: documentSvc,
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Ingest chunks, embeds and indexes a document version. Re-ingesting
// unchanged content is a no-op.
func (c *Client) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	res, err := c.ingestSvc.Ingest(ctx, &ingestuc.Request{
		ID:        req.ID,
		Title:     req.Title,
		Text:      req.Text,
		Format:    req.Format,
		Audiences: req.Audiences,
	})
	if err != nil {
		return IngestResult{}, err
	}
	return IngestResult{
		DocumentID: res.DocumentID,
		Version:    res.Version,
		Chunks:     res.Chunks,
		Unchanged:  res.Unchanged,
	}, nil
}

// Search retrieves ranked chunks visible to the audience.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]Chunk, error) {
	entries, err := c.retrieveSvc.Retrieve(ctx, &retrieveuc.Request{
		Query:             req.Query,
		Audience:          domain.Audience(req.Audience),
		TopK:              req.TopK,
		DocumentID:        req.DocumentID,
		Version:           req.Version,
		IncludeHistorical: req.IncludeHistorical,
	})
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, len(entries))
	for i := range entries {
		e := &entries[i]
		chunks[i] = Chunk{
			ChunkID:    e.ChunkID,
			DocumentID: e.DocumentID,
			Version:    e.Version,
			Seq:        e.Seq,
			Score:      e.Score,
			Text:       e.Text,
		}
	}
	return chunks, nil
}

// Ask runs one conversational turn against the knowledge base.
func (c *Client) Ask(ctx context.Context, req AskRequest) (AskResult, error) {
	res, err := c.askSvc.Ask(ctx, &askuc.Request{
		SessionID: req.SessionID,
		Audience:  req.Audience,
		Query:     req.Query,
		TopK:      req.TopK,
	})
	if err != nil {
		return AskResult{}, err
	}

	citations := make([]Citation, len(res.Citations))
	for i := range res.Citations {
		cit := &res.Citations[i]
		citations[i] = Citation{
			Marker:     cit.Marker(),
			ChunkID:    cit.ChunkID(),
			DocumentID: cit.DocumentID(),
			Title:      cit.Title(),
			Version:    cit.Version(),
		}
	}
	return AskResult{
		Answer:       res.Answer,
		Citations:    citations,
		Reformulated: res.Reformulated,
		SessionID:    res.SessionID,
	}, nil
}

// Retire removes a document version from default retrieval.
func (c *Client) Retire(ctx context.Context, documentID string, version int) error {
	return c.documentSvc.Retire(ctx, documentID, version)
}

// Documents lists the cataloged documents.
func (c *Client) Documents(ctx context.Context) ([]DocumentInfo, error) {
	docs, err := c.documentSvc.List(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]DocumentInfo, len(docs))
	for i := range docs {
		d := &docs[i]
		infos[i] = DocumentInfo{
			ID:        d.ID(),
			Title:     d.Title(),
			Version:   d.Version(),
			Status:    string(d.Status()),
			Audiences: d.Audiences().Slice(),
		}
	}
	return infos, nil
}

// embedderAdapter wraps the public Embedder to satisfy internal contracts.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

func (a *embedderAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	return domain.BatchFallback(ctx, a, texts)
}

// generatorAdapter wraps the public Generator to satisfy domain.Generator.
type generatorAdapter struct {
	inner Generator
}

func (a *generatorAdapter) Generate(ctx context.Context, prompt domain.Prompt) (domain.GenerationResult, error) {
	text, err := a.inner.Generate(ctx, prompt.System, prompt.User)
	if err != nil {
		return domain.GenerationResult{}, fmt.Errorf("generate: %w", err)
	}
	return domain.GenerationResult{Text: text}, nil
}
