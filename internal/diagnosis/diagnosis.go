package diagnosis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tutorkit/tutord/internal/llm"
)

const diagnoseTimeout = 10 * time.Second

// Kind classifies the misconception detected in a student question.
type Kind string

const (
	NoConfusion      Kind = "NO_CONFUSION"
	ConceptGap       Kind = "CONCEPT_GAP"
	FormulaConfusion Kind = "FORMULA_CONFUSION"
	ProceduralError  Kind = "PROCEDURAL_ERROR"
)

// Kinds lists every valid confusion kind.
func Kinds() []Kind {
	return []Kind{NoConfusion, ConceptGap, FormulaConfusion, ProceduralError}
}

// Valid reports whether k is a member of the closed taxonomy.
func (k Kind) Valid() bool {
	switch k {
	case NoConfusion, ConceptGap, FormulaConfusion, ProceduralError:
		return true
	}
	return false
}

// Diagnosis is the classification result for one question.
type Diagnosis struct {
	Kind             Kind
	Reason           string
	TeachingStrategy string
}

// Chatter is the slice of the LLM client the diagnoser needs.
type Chatter interface {
	GenerateJSON(ctx context.Context, system, user string) (string, error)
}

// Diagnoser classifies student questions into the confusion taxonomy.
// Stateless per call.
type Diagnoser struct {
	client Chatter
}

// NewDiagnoser creates a Diagnoser using the given chat client.
func NewDiagnoser(client Chatter) *Diagnoser {
	return &Diagnoser{client: client}
}

const diagnoseSystem = "You classify student questions for a tutoring system. Return ONLY valid JSON."

// Diagnose classifies the question. On any failure (LLM error, malformed
// JSON, unknown kind) it returns NO_CONFUSION with empty reason and strategy.
// A false misconception label mutates persisted profile counters, so the
// prompt and the fallback both lean toward NO_CONFUSION.
func (d *Diagnoser) Diagnose(ctx context.Context, question, subject, class string) Diagnosis {
	none := Diagnosis{Kind: NoConfusion}
	if question == "" {
		return none
	}

	ctx, cancel := context.WithTimeout(ctx, diagnoseTimeout)
	defer cancel()

	raw, err := d.client.GenerateJSON(ctx, diagnoseSystem, buildPrompt(question, subject, class))
	if err != nil {
		slog.Warn("confusion diagnosis chat failed", "error", err)
		return none
	}

	var payload struct {
		ConfusionType    string `json:"confusion_type"`
		Reason           string `json:"reason"`
		TeachingStrategy string `json:"teaching_strategy"`
	}
	if err := llm.DecodeJSON(raw, &payload); err != nil {
		slog.Warn("failed to parse diagnosis from LLM response", "error", err, "response", raw)
		return none
	}

	kind := Kind(payload.ConfusionType)
	if !kind.Valid() {
		slog.Warn("diagnosis returned unknown confusion kind", "kind", payload.ConfusionType)
		return none
	}
	return Diagnosis{
		Kind:             kind,
		Reason:           payload.Reason,
		TeachingStrategy: payload.TeachingStrategy,
	}
}

func buildPrompt(question, subject, class string) string {
	return fmt.Sprintf(`Class: %s
Subject: %s
Question: %q

Rules:
- Use NO_CONFUSION when the student is asking a clear factual or conceptual question (e.g. "what is X?", "is X equal to Y?", "explain Z"). Only use CONCEPT_GAP / FORMULA_CONFUSION / PROCEDURAL_ERROR when the question itself shows a clear misconception (wrong claim, confused formula, or wrong procedure).
- If in doubt, prefer NO_CONFUSION so we do not mark correct or neutral questions as wrong.

JSON:
{
  "confusion_type": "NO_CONFUSION | CONCEPT_GAP | FORMULA_CONFUSION | PROCEDURAL_ERROR",
  "reason": "short reason",
  "teaching_strategy": "how to explain"
}`, class, subject, question)
}
