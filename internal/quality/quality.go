package quality

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/tutorkit/tutord/internal/llm"
	"github.com/tutorkit/tutord/internal/retrieval"
)

const scoreTimeout = 15 * time.Second

// Scores rates one tutoring turn on a 0-100 scale per metric.
// HallucinationRisk is inverted: higher means worse.
type Scores struct {
	PedagogicalValue   float64 `json:"pedagogical_value"`
	CriticalConfidence float64 `json:"critical_confidence"`
	RagRelevance       float64 `json:"rag_relevance"`
	AnswerCompleteness float64 `json:"answer_completeness"`
	HallucinationRisk  float64 `json:"hallucination_risk"`
}

// Defaults returns the conservative mid-range scores substituted when the
// evaluation call fails. Mid-range keeps a broken scorer from dragging an
// agent's running means toward either extreme.
func Defaults() Scores {
	return Scores{
		PedagogicalValue:   50,
		CriticalConfidence: 50,
		RagRelevance:       50,
		AnswerCompleteness: 50,
		HallucinationRisk:  50,
	}
}

// Chatter is the slice of the LLM client the scorer needs.
type Chatter interface {
	GenerateJSON(ctx context.Context, system, user string) (string, error)
}

// Scorer evaluates generated responses with a second LLM call.
type Scorer struct {
	client Chatter
}

// NewScorer creates a Scorer using the given chat client.
func NewScorer(client Chatter) *Scorer {
	return &Scorer{client: client}
}

const scoreSystem = "You evaluate tutoring responses for a quality monitor. Return ONLY valid JSON."

// Score rates the turn. RagRelevance is derived from the chunk similarity
// scores; the remaining metrics come from the LLM, replaced by mid-range
// defaults when the call or the parse fails. Never returns an error.
func (s *Scorer) Score(ctx context.Context, query, response string, chunks []retrieval.Chunk) Scores {
	scores := Defaults()
	scores.RagRelevance = ragRelevance(chunks)

	if query == "" || response == "" {
		return scores
	}

	ctx, cancel := context.WithTimeout(ctx, scoreTimeout)
	defer cancel()

	raw, err := s.client.GenerateJSON(ctx, scoreSystem, buildPrompt(query, response, retrieval.JoinChunks(chunks)))
	if err != nil {
		slog.Warn("quality scoring chat failed", "error", err)
		return scores
	}

	var payload struct {
		PedagogicalValue   *float64 `json:"pedagogical_value"`
		ModelCertainty     *float64 `json:"model_certainty"`
		AnswerCompleteness *float64 `json:"answer_completeness"`
		HallucinationRisk  *float64 `json:"hallucination_risk"`
	}
	if err := llm.DecodeJSON(raw, &payload); err != nil {
		slog.Warn("failed to parse quality scores from LLM response", "error", err, "response", raw)
		return scores
	}

	scores.PedagogicalValue = clamp(valueOr(payload.PedagogicalValue, 50))
	scores.CriticalConfidence = clamp(valueOr(payload.ModelCertainty, 50))
	scores.AnswerCompleteness = clamp(valueOr(payload.AnswerCompleteness, 50))
	scores.HallucinationRisk = clamp(valueOr(payload.HallucinationRisk, 50))
	return scores
}

// ragRelevance maps the mean chunk similarity onto 0-100. Cosine scores of
// 0.4-1.0 map roughly to 40-100%.
func ragRelevance(chunks []retrieval.Chunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	var sum float64
	for _, c := range chunks {
		sum += c.Score
	}
	avg := sum / float64(len(chunks))
	return clamp(math.Round((avg - 0.4) / 0.6 * 100))
}

func buildPrompt(query, response, contextString string) string {
	return fmt.Sprintf(`Evaluate this tutoring response.

Query: %q

Retrieved Context:
%s

Generated Response:
%s

Score each metric 0-100 (integers):
- pedagogical_value: How well does the response teach, not just answer? (100 = excellent teaching)
- model_certainty: How confident is the model in this answer? (100 = very confident)
- answer_completeness: Does the answer fully address the query? (100 = fully complete)
- hallucination_risk: Risk of fabricated/unsupported content (0 = none, 100 = high risk)

Return ONLY this JSON (no other text):
{"pedagogical_value": N, "model_certainty": N, "answer_completeness": N, "hallucination_risk": N}`,
		query, truncate(contextString, 2000), truncate(response, 1500))
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
