package retrieval

import "context"

// Chunk is a retrieved curriculum fragment with its similarity score.
// Chunks are ephemeral: produced per query, never persisted by this package.
type Chunk struct {
	ChunkID    string
	DocumentID string
	Text       string
	Score      float64
}

// Index is the interface for per-subject vector search backends. The default
// implementation is MongoIndex ($vectorSearch with a full-scan cosine
// fallback); tests use in-memory fakes.
type Index interface {
	// Search returns the topK nearest chunks in the subject's collection by
	// cosine similarity, unfiltered. An empty result is not an error.
	Search(ctx context.Context, subject string, vector []float32, topK int) ([]Chunk, error)
}
