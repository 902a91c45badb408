package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Chunk is a bounded-size retrievable unit of one document version.
// Audience tags and version are immutable after creation; a new document
// version mints entirely new chunk identities.
type Chunk struct {
	documentID string
	version    int
	seq        int
	text       string
	audiences  AudienceSet
	vector     []float32
}

// NewChunk creates a chunk for a document version.
func NewChunk(documentID string, version, seq int, text string, audiences AudienceSet) Chunk {
	return Chunk{
		documentID: documentID,
		version:    version,
		seq:        seq,
		text:       text,
		audiences:  audiences,
	}
}

// ChunkID formats the stable chunk identity <doc>:v<version>:<seq>.
func ChunkID(documentID string, version, seq int) string {
	return documentID + ":v" + strconv.Itoa(version) + ":" + strconv.Itoa(seq)
}

// ParseChunkID splits a chunk identity into its parts.
func ParseChunkID(id string) (documentID string, version, seq int, err error) {
	last := strings.LastIndexByte(id, ':')
	if last <= 0 {
		return "", 0, 0, fmt.Errorf("malformed chunk id %q", id)
	}
	mid := strings.LastIndexByte(id[:last], ':')
	if mid <= 0 {
		return "", 0, 0, fmt.Errorf("malformed chunk id %q", id)
	}

	vpart := id[mid+1 : last]
	if !strings.HasPrefix(vpart, "v") {
		return "", 0, 0, fmt.Errorf("malformed chunk id %q", id)
	}
	version, err = strconv.Atoi(vpart[1:])
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed chunk id %q: %w", id, err)
	}
	seq, err = strconv.Atoi(id[last+1:])
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed chunk id %q: %w", id, err)
	}
	return id[:mid], version, seq, nil
}

// ID returns the chunk identity.
func (c *Chunk) ID() string { return ChunkID(c.documentID, c.version, c.seq) }

// DocumentID returns the owning document identity.
func (c *Chunk) DocumentID() string { return c.documentID }

// Version returns the owning document version.
func (c *Chunk) Version() int { return c.version }

// Seq returns the sequence index within the document.
func (c *Chunk) Seq() int { return c.seq }

// Text returns the chunk text.
func (c *Chunk) Text() string { return c.text }

// Audiences returns the audience tags inherited from the document.
func (c *Chunk) Audiences() AudienceSet { return c.audiences }

// Vector returns the embedding vector, nil before embedding.
func (c *Chunk) Vector() []float32 { return c.vector }

// WithVector returns a copy carrying the embedding vector.
func (c Chunk) WithVector(v []float32) Chunk {
	c.vector = v
	return c
}
