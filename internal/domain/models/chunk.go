package models

import "time"

// SemanticChunk is one retrievable unit of semantic memory. Chunks are
// immutable after insert; corrections are superseding inserts.
type SemanticChunk struct {
	ChunkID   string    `json:"chunk_id"`
	Source    string    `json:"source"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// ScoredChunk is a retrieval hit with its cosine similarity.
type ScoredChunk struct {
	SemanticChunk
	Similarity float64 `json:"similarity"`
}

// SourceKey returns the dedup key for retrieval: the source prefix before
// the first '#', or the whole source when there is none.
func (c *SemanticChunk) SourceKey() string {
	for i := 0; i < len(c.Source); i++ {
		if c.Source[i] == '#' {
			return c.Source[:i]
		}
	}
	return c.Source
}
