package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrNoRelevantMaterial signals that nothing in the learning materials passed
// the similarity threshold. Callers must answer with an explicit safe message
// instead of letting the language model fall back on prior knowledge.
var ErrNoRelevantMaterial = errors.New("no relevant material passed the similarity threshold")

// Retriever combines core-question extraction, embedding and vector search
// to find curriculum chunks relevant to a student question.
type Retriever struct {
	embedder  *Embedder
	index     Index
	threshold float64
}

// NewRetriever creates a Retriever. threshold is the minimum cosine
// similarity for a chunk to be considered relevant.
func NewRetriever(embedder *Embedder, index Index, threshold float64) *Retriever {
	return &Retriever{embedder: embedder, index: index, threshold: threshold}
}

// Retrieve returns the topK chunks from the subject's collection scoring at
// least the configured threshold. Returns ErrNoRelevantMaterial when nothing
// qualifies, which is a normal outcome for off-curriculum questions.
func (r *Retriever) Retrieve(ctx context.Context, query, subject string, topK int) ([]Chunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	core := ExtractCoreQuestion(query)
	slog.Debug("extracted core question", "core", core, "query_len", len(query))

	vec, err := r.embedder.Embed(ctx, core)
	if err != nil {
		return nil, fmt.Errorf("embedding core question: %w", err)
	}

	chunks, err := r.index.Search(ctx, subject, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("searching subject %s: %w", subject, err)
	}

	filtered := FilterByScore(chunks, r.threshold)
	if len(filtered) == 0 {
		slog.Warn("no chunks passed similarity threshold",
			"subject", subject, "threshold", r.threshold, "candidates", len(chunks))
		return nil, ErrNoRelevantMaterial
	}
	return filtered, nil
}

// FilterByScore keeps chunks with Score >= threshold, preserving order.
func FilterByScore(chunks []Chunk, threshold float64) []Chunk {
	var kept []Chunk
	for _, c := range chunks {
		if c.Score >= threshold {
			kept = append(kept, c)
		}
	}
	return kept
}

// JoinChunks builds the combined context string sent to the language model.
func JoinChunks(chunks []Chunk) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return strings.Join(texts, "\n---\n")
}
