// Package cite maps synthesized answer text back to the chunks that ground
// it. Citations only ever reference the retrieval set supplied for the turn;
// when nothing is attributable the citation list is empty, never guessed.
package cite

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/index"
)

// Catalog resolves document titles for display.
type Catalog interface {
	Get(ctx context.Context, id string) (domain.Document, error)
}

// Service is the citation resolver.
type Service struct {
	catalog Catalog
}

// New creates a citation resolver.
func New(catalog Catalog) *Service {
	return &Service{catalog: catalog}
}

var markerRegex = regexp.MustCompile(`\[S(\d+)\]`)

// Resolve returns citations for the answer, ordered by marker. Markers
// emitted by the model ([S<n>], 1-based positions into the retrieval set)
// are authoritative; when the model emitted none, a token-overlap heuristic
// attributes the answer to the best-matching chunk.
func (s *Service) Resolve(ctx context.Context, answer string, retrieved []index.Entry) []domain.Citation {
	if len(retrieved) == 0 || answer == "" {
		return nil
	}

	positions := markerPositions(answer, len(retrieved))
	if len(positions) == 0 {
		if best, ok := bestOverlap(answer, retrieved); ok {
			positions = []int{best}
		}
	}

	citations := make([]domain.Citation, 0, len(positions))
	for _, pos := range positions {
		entry := &retrieved[pos]
		citations = append(citations, domain.NewCitation(
			"[S"+strconv.Itoa(pos+1)+"]",
			entry.ChunkID,
			entry.DocumentID,
			s.title(ctx, entry.DocumentID),
			entry.Version,
		))
	}
	return citations
}

// markerPositions extracts valid marker indexes (zero-based, unique, sorted).
// Markers pointing outside the retrieval set are dropped, never guessed at.
func markerPositions(answer string, setSize int) []int {
	seen := make(map[int]struct{})
	for _, m := range markerRegex.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > setSize {
			continue
		}
		seen[n-1] = struct{}{}
	}

	positions := make([]int, 0, len(seen))
	for pos := range seen {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	return positions
}

// bestOverlap finds the chunk sharing the most significant tokens with the
// answer. Requires a minimum overlap so unrelated answers stay uncited.
func bestOverlap(answer string, retrieved []index.Entry) (int, bool) {
	answerTokens := tokenSet(answer)

	best, bestCount := -1, 0
	for i := range retrieved {
		count := 0
		for tok := range tokenSet(retrieved[i].Text) {
			if _, ok := answerTokens[tok]; ok {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = i, count
		}
	}

	if bestCount < 3 {
		return 0, false
	}
	return best, true
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ",.;:?!()\"'")
		if len(w) < 4 {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

func (s *Service) title(ctx context.Context, documentID string) string {
	if s.catalog == nil {
		return ""
	}
	doc, err := s.catalog.Get(ctx, documentID)
	if err != nil {
		return ""
	}
	return doc.Title()
}
