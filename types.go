package ragdex

// Embedding is the result of vectorizing one text.
type Embedding struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// IngestRequest describes a document version to ingest.
type IngestRequest struct {
	ID        string
	Title     string
	Text      string
	Format    string
	Audiences []string
}

// IngestResult reports an ingestion outcome.
type IngestResult struct {
	DocumentID string
	Version    int
	Chunks     int
	Unchanged  bool
}

// SearchRequest describes one retrieval.
type SearchRequest struct {
	Query             string
	Audience          string
	TopK              int
	DocumentID        string
	Version           int
	IncludeHistorical bool
}

// Chunk is one retrieval hit.
type Chunk struct {
	ChunkID    string
	DocumentID string
	Version    int
	Seq        int
	Score      float64
	Text       string
}

// AskRequest describes one conversational question.
type AskRequest struct {
	SessionID string
	Audience  string
	Query     string
	TopK      int
}

// Citation links an answer marker to its source chunk.
type Citation struct {
	Marker     string
	ChunkID    string
	DocumentID string
	Title      string
	Version    int
}

// AskResult is the outcome of one conversational turn.
type AskResult struct {
	Answer       string
	Citations    []Citation
	Reformulated string
	SessionID    string
}

// DocumentInfo summarizes a cataloged document.
type DocumentInfo struct {
	ID        string
	Title     string
	Version   int
	Status    string
	Audiences []string
}
