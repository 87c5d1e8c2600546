package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/tutorkit/tutord/internal/retrieval"
)

// filterKeep is how many chunks survive a filter_context action.
const filterKeep = 5

// Chatter is the slice of the LLM client the optimizer needs for rewrites.
type Chatter interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Optimizer executes the optimizer actions that touch the query or the
// retrieved context. Action selection itself lives behind the Policy
// interface.
type Optimizer struct {
	client Chatter
}

// NewOptimizer creates an Optimizer using the given chat client.
func NewOptimizer(client Chatter) *Optimizer {
	return &Optimizer{client: client}
}

const rewriteSystem = "Rewrite the following student query to be more specific and suitable for a textbook search. " +
	"Output ONLY the rewritten query text and nothing else. No conversational filler, no multiple options, no preamble. " +
	"If the query already names a clear standalone topic, keep that topic; only use the provided context to disambiguate vague follow-ups, " +
	"never to carry over an unrelated prior topic."

// RewriteQuery asks the LLM to reshape the query for retrieval. Returns the
// original query unchanged on any failure.
func (o *Optimizer) RewriteQuery(ctx context.Context, query, contextText string) string {
	system := rewriteSystem
	if contextText != "" {
		system += fmt.Sprintf("\nRecent context: %s", truncate(contextText, 500))
	}

	rewritten, err := o.client.Generate(ctx, system, query)
	if err != nil {
		slog.Warn("query rewrite failed, keeping original", "error", err)
		return query
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return query
	}
	slog.Debug("query rewritten", "original", query, "rewritten", rewritten)
	return rewritten
}

// Filter keeps the top chunks by score when retrieval returned more than the
// filter limit; shorter inputs pass through unchanged.
func (o *Optimizer) Filter(chunks []retrieval.Chunk) []retrieval.Chunk {
	if len(chunks) <= filterKeep {
		return chunks
	}
	sorted := make([]retrieval.Chunk, len(chunks))
	copy(sorted, chunks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	return sorted[:filterKeep]
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
