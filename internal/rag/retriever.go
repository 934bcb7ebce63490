package rag

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/clara-assistant/clara/internal/domain/models"
	"github.com/clara-assistant/clara/internal/ports"
)

const (
	// DefaultTopK is how many chunks a retrieval returns after dedup.
	DefaultTopK = 5
	// overfetchFactor widens the candidate set so source dedup still
	// fills topK.
	overfetchFactor = 3
)

// Options tunes one retrieval.
type Options struct {
	// TopK caps the result count. Negative keeps the configured
	// default; zero retrieves nothing.
	TopK int
	// MinSimilarity drops chunks scoring below it. Zero keeps the
	// configured default.
	MinSimilarity float64
}

// DefaultOptions keeps the retriever's configured depth and floor.
func DefaultOptions() Options {
	return Options{TopK: -1}
}

// Retriever embeds a query and returns deduplicated scored chunks plus
// an assembled context block for the LLM prompt.
type Retriever struct {
	embedder      ports.Embedder
	chunks        ports.ChunkRepository
	topK          int
	minSimilarity float64
}

func NewRetriever(embedder ports.Embedder, chunks ports.ChunkRepository, topK int, minSimilarity float64) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{
		embedder:      embedder,
		chunks:        chunks,
		topK:          topK,
		minSimilarity: minSimilarity,
	}
}

// Retrieve returns the most similar chunks under opts, keeping only the
// best hit per source key (the source prefix before '#'). An empty
// query, topK of zero, or a floor no chunk reaches all return empty
// results and no error.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) ([]*models.ScoredChunk, error) {
	topK := opts.TopK
	if topK < 0 {
		topK = r.topK
	}
	if topK == 0 {
		return nil, nil
	}
	minSimilarity := opts.MinSimilarity
	if minSimilarity <= 0 {
		minSimilarity = r.minSimilarity
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	start := time.Now()
	result, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}

	candidates, err := r.chunks.SearchSimilar(ctx, result.Embedding, topK*overfetchFactor, "")
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	// Results arrive ordered by similarity; the first hit per source key
	// is also the best one.
	seen := make(map[string]bool, len(candidates))
	deduped := make([]*models.ScoredChunk, 0, topK)
	for _, chunk := range candidates {
		if chunk.Similarity < minSimilarity {
			continue
		}
		key := chunk.SourceKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, chunk)
		if len(deduped) == topK {
			break
		}
	}

	log.Printf("[Retriever.Retrieve] query done: candidates=%d, kept=%d, cached=%t, duration=%s",
		len(candidates), len(deduped), result.FromCache, time.Since(start))
	return deduped, nil
}

// AssembleContext renders chunks into the prompt context block, one
// chunk per line prefixed with its citation id.
func AssembleContext(chunks []*models.ScoredChunk) (string, []string) {
	if len(chunks) == 0 {
		return "", nil
	}

	var b strings.Builder
	citations := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		fmt.Fprintf(&b, "[%s] %s\n", chunk.ChunkID, strings.TrimSpace(chunk.Text))
		citations = append(citations, chunk.ChunkID)
	}
	return strings.TrimRight(b.String(), "\n"), citations
}
