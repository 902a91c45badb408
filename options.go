package ragdex

import (
	"context"
	"time"
)

// Embedder vectorizes text. Implementations wrap whichever embedding
// provider the host application uses.
type Embedder interface {
	Embed(ctx context.Context, text string) (Embedding, error)
}

// Generator produces an answer from a system and user prompt.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Option configures the Client.
type Option func(*clientConfig)

type clientConfig struct {
	addrs    []string
	password string

	embedder  Embedder
	generator Generator

	dimensions      int
	hnswM           int
	hnswEFConstruct int

	chunkSize    int
	chunkOverlap float64

	maxPerDocument int
	versionBoost   float64

	sessionTTL  time.Duration
	sessionIdle time.Duration
}

func defaultClientConfig() *clientConfig {
	return &clientConfig{
		dimensions:   1536,
		chunkSize:    1200,
		chunkOverlap: 0.15,
		sessionTTL:   time.Hour,
		sessionIdle:  30 * time.Minute,
	}
}

// WithValkey connects to a Valkey instance.
func WithValkey(addrs ...string) Option {
	return func(c *clientConfig) { c.addrs = addrs }
}

// WithRedis connects to a Redis instance. Both drivers share the protocol.
func WithRedis(addrs ...string) Option {
	return func(c *clientConfig) { c.addrs = addrs }
}

// WithPassword sets the database password.
func WithPassword(password string) Option {
	return func(c *clientConfig) { c.password = password }
}

// WithEmbedder sets the embedding provider. Required.
func WithEmbedder(e Embedder) Option {
	return func(c *clientConfig) { c.embedder = e }
}

// WithGenerator sets the generative model. Required.
func WithGenerator(g Generator) Option {
	return func(c *clientConfig) { c.generator = g }
}

// WithDimensions sets the embedding vector dimensionality (default 1536).
func WithDimensions(dim int) Option {
	return func(c *clientConfig) {
		if dim > 0 {
			c.dimensions = dim
		}
	}
}

// WithHNSW tunes the vector index construction parameters.
func WithHNSW(m, efConstruct int) Option {
	return func(c *clientConfig) {
		c.hnswM = m
		c.hnswEFConstruct = efConstruct
	}
}

// WithChunking tunes document segmentation: chunk size in runes and the
// overlap fraction carried between adjacent chunks.
func WithChunking(size int, overlap float64) Option {
	return func(c *clientConfig) {
		if size > 0 {
			c.chunkSize = size
		}
		if overlap > 0 {
			c.chunkOverlap = overlap
		}
	}
}

// WithRanking tunes retrieval: per-document result cap and the score boost
// for a document's newest retrieved version.
func WithRanking(maxPerDocument int, versionBoost float64) Option {
	return func(c *clientConfig) {
		c.maxPerDocument = maxPerDocument
		c.versionBoost = versionBoost
	}
}

// WithSessionLifetime sets how long sessions persist and how long they may
// idle before expiring.
func WithSessionLifetime(ttl, idle time.Duration) Option {
	return func(c *clientConfig) {
		if ttl > 0 {
			c.sessionTTL = ttl
		}
		if idle > 0 {
			c.sessionIdle = idle
		}
	}
}
