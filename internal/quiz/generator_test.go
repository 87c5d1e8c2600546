package quiz

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tutorkit/tutord/internal/session"
)

// mockChatter implements Chatter for testing.
type mockChatter struct {
	generateFn func(ctx context.Context, system, user string) (string, error)
}

func (m *mockChatter) GenerateJSON(ctx context.Context, system, user string) (string, error) {
	return m.generateFn(ctx, system, user)
}

const validQuizJSON = `{"quiz": [
	{"question": "What is 2+2?", "options": ["3", "4", "5", "6"], "answer": "4"},
	{"question": "What is 3*3?", "options": ["6", "9", "12", "3"], "answer": "9"}
]}`

func TestGenerate(t *testing.T) {
	client := &mockChatter{
		generateFn: func(_ context.Context, _, _ string) (string, error) {
			return validQuizJSON, nil
		},
	}

	g := NewGenerator(client)
	history := []session.Turn{{Query: "teach me arithmetic", Response: "Sure..."}}
	questions, err := g.Generate(context.Background(), "math", "", history, 2)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("got %d questions, want 2", len(questions))
	}
	if questions[0].Answer != "4" {
		t.Errorf("answer = %q, want 4", questions[0].Answer)
	}
}

func TestGenerate_NoMaterial(t *testing.T) {
	g := NewGenerator(&mockChatter{})
	if _, err := g.Generate(context.Background(), "math", "", nil, 5); !errors.Is(err, ErrNoMaterial) {
		t.Errorf("err = %v, want ErrNoMaterial", err)
	}
}

func TestGenerate_DropsMalformedItems(t *testing.T) {
	client := &mockChatter{
		generateFn: func(_ context.Context, _, _ string) (string, error) {
			return `{"quiz": [
				{"question": "Only three options", "options": ["a", "b", "c"], "answer": "a"},
				{"question": "Answer not in options", "options": ["a", "b", "c", "d"], "answer": "e"},
				{"question": "Valid", "options": [" a ", "b", "c", "d"], "answer": "a"}
			]}`, nil
		},
	}

	g := NewGenerator(client)
	questions, err := g.Generate(context.Background(), "math", "algebra", nil, 5)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(questions) != 1 || questions[0].Text != "Valid" {
		t.Errorf("got %+v, want only the valid item", questions)
	}
	if questions[0].Options[0] != "a" {
		t.Errorf("options not trimmed: %q", questions[0].Options[0])
	}
}

func TestGenerate_AllItemsInvalid(t *testing.T) {
	client := &mockChatter{
		generateFn: func(_ context.Context, _, _ string) (string, error) {
			return `{"quiz": [{"question": "bad", "options": [], "answer": ""}]}`, nil
		},
	}

	g := NewGenerator(client)
	if _, err := g.Generate(context.Background(), "math", "algebra", nil, 5); err == nil {
		t.Error("want error when every item is invalid")
	}
}

func TestGenerate_TopicNarrowsPrompt(t *testing.T) {
	var prompt string
	client := &mockChatter{
		generateFn: func(_ context.Context, _, user string) (string, error) {
			prompt = user
			return validQuizJSON, nil
		},
	}

	history := []session.Turn{
		{Query: "explain photosynthesis", Response: "Plants convert light..."},
		{Query: "what is mitosis?", Response: "Cell division..."},
	}
	g := NewGenerator(client)
	if _, err := g.Generate(context.Background(), "biology", "photosynthesis", history, 2); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(prompt, "photosynthesis") {
		t.Error("topic missing from prompt")
	}
	if strings.Contains(prompt, "mitosis") {
		t.Error("off-topic history leaked into the prompt")
	}
}

func TestFilterByTopic_NoMatchesKeepsAllHistory(t *testing.T) {
	var prompt string
	client := &mockChatter{
		generateFn: func(_ context.Context, _, user string) (string, error) {
			prompt = user
			return validQuizJSON, nil
		},
	}

	history := []session.Turn{{Query: "what is mitosis?", Response: "Cell division..."}}
	g := NewGenerator(client)
	if _, err := g.Generate(context.Background(), "biology", "thermodynamics", history, 2); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(prompt, "mitosis") {
		t.Error("history dropped even though no turn matched the topic")
	}
}
