package domain

// Citation links an answer segment to its grounding chunks. Derived,
// read-only; it has no lifecycle beyond the answer it annotates.
type Citation struct {
	marker     string
	chunkID    string
	documentID string
	title      string
	version    int
}

// NewCitation creates a citation for a source marker in the answer.
func NewCitation(marker, chunkID, documentID, title string, version int) Citation {
	return Citation{
		marker:     marker,
		chunkID:    chunkID,
		documentID: documentID,
		title:      title,
		version:    version,
	}
}

// Marker returns the source marker as it appears in the answer, e.g. "[S1]".
func (c *Citation) Marker() string { return c.marker }

// ChunkID returns the cited chunk identity.
func (c *Citation) ChunkID() string { return c.chunkID }

// DocumentID returns the originating document identity.
func (c *Citation) DocumentID() string { return c.documentID }

// Title returns the originating document title.
func (c *Citation) Title() string { return c.title }

// Version returns the document version the citation was generated against.
func (c *Citation) Version() int { return c.version }
