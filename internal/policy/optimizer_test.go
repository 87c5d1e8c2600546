package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/tutorkit/tutord/internal/retrieval"
)

// mockChatter implements Chatter for testing.
type mockChatter struct {
	generateFn func(ctx context.Context, system, user string) (string, error)
}

func (m *mockChatter) Generate(ctx context.Context, system, user string) (string, error) {
	return m.generateFn(ctx, system, user)
}

func TestRewriteQuery(t *testing.T) {
	client := &mockChatter{
		generateFn: func(_ context.Context, _, user string) (string, error) {
			if user != "what about the other one?" {
				t.Errorf("user prompt = %q", user)
			}
			return "  properties of isosceles triangles  ", nil
		},
	}

	o := NewOptimizer(client)
	got := o.RewriteQuery(context.Background(), "what about the other one?", "we discussed triangles")
	if got != "properties of isosceles triangles" {
		t.Errorf("got %q", got)
	}
}

func TestRewriteQuery_KeepsOriginalOnFailure(t *testing.T) {
	client := &mockChatter{
		generateFn: func(_ context.Context, _, _ string) (string, error) {
			return "", errors.New("llm down")
		},
	}

	o := NewOptimizer(client)
	got := o.RewriteQuery(context.Background(), "what is inertia?", "")
	if got != "what is inertia?" {
		t.Errorf("got %q, want the original query", got)
	}
}

func TestRewriteQuery_KeepsOriginalOnEmptyOutput(t *testing.T) {
	client := &mockChatter{
		generateFn: func(_ context.Context, _, _ string) (string, error) {
			return "   ", nil
		},
	}

	o := NewOptimizer(client)
	got := o.RewriteQuery(context.Background(), "what is inertia?", "")
	if got != "what is inertia?" {
		t.Errorf("got %q, want the original query", got)
	}
}

func TestFilter(t *testing.T) {
	o := NewOptimizer(nil)

	in := []retrieval.Chunk{
		{ChunkID: "a", Score: 0.2},
		{ChunkID: "b", Score: 0.9},
		{ChunkID: "c", Score: 0.5},
		{ChunkID: "d", Score: 0.8},
		{ChunkID: "e", Score: 0.4},
		{ChunkID: "f", Score: 0.7},
		{ChunkID: "g", Score: 0.6},
	}

	got := o.Filter(in)
	if len(got) != 5 {
		t.Fatalf("kept %d chunks, want 5", len(got))
	}
	if got[0].ChunkID != "b" {
		t.Errorf("top chunk = %s, want b", got[0].ChunkID)
	}
	for _, c := range got {
		if c.ChunkID == "a" || c.ChunkID == "e" {
			t.Errorf("low-score chunk %s survived the filter", c.ChunkID)
		}
	}
}

func TestFilter_ShortInputUntouched(t *testing.T) {
	o := NewOptimizer(nil)
	in := chunks(5)
	got := o.Filter(in)
	if len(got) != 5 {
		t.Errorf("kept %d chunks, want all 5", len(got))
	}
}
