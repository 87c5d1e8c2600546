package api

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tutorkit/tutord/internal/performance"
	"github.com/tutorkit/tutord/internal/pipeline"
	"github.com/tutorkit/tutord/internal/retrieval"
)

type mockMCPRetriever struct {
	chunks []retrieval.Chunk
	err    error
}

func (m *mockMCPRetriever) Retrieve(_ context.Context, _, _ string, _ int) ([]retrieval.Chunk, error) {
	return m.chunks, m.err
}

func testMCPDeps() MCPDeps {
	deps := testHandlerDeps()
	return MCPDeps{
		Tutor:     deps.Tutor,
		Retriever: &mockMCPRetriever{},
		Profiles:  deps.Profiles,
		Overviews: deps.Overviews,
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPTool_AskTutor(t *testing.T) {
	deps := testMCPDeps()
	deps.Tutor.(*mockTutor).askFn = func(_ context.Context, req pipeline.AskRequest) (pipeline.AskResponse, error) {
		if req.StudentID != "alice" || req.Subject != "biology" || req.Class != "10" {
			t.Errorf("ask request = %+v", req)
		}
		return pipeline.AskResponse{TurnID: "turn-1", Response: "Plants make glucose."}, nil
	}
	handler := mcpAskTutor(deps)

	req := makeCallToolRequest("ask_tutor", map[string]interface{}{
		"student_id": "alice",
		"subject":    "biology",
		"class":      "10",
		"query":      "what is photosynthesis?",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var resp pipeline.AskResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &resp); err != nil {
		t.Fatalf("decoding tool output: %v", err)
	}
	if resp.TurnID != "turn-1" || resp.Response != "Plants make glucose." {
		t.Errorf("response = %+v", resp)
	}
}

func TestMCPTool_AskTutor_MissingArgs(t *testing.T) {
	handler := mcpAskTutor(testMCPDeps())

	req := makeCallToolRequest("ask_tutor", map[string]interface{}{
		"subject": "biology",
		"query":   "q",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing student_id")
	}
}

func TestMCPTool_RetrieveMaterials(t *testing.T) {
	deps := testMCPDeps()
	deps.Retriever = &mockMCPRetriever{chunks: []retrieval.Chunk{
		{ChunkID: "c1", DocumentID: "d1", Text: "photosynthesis basics", Score: 0.92},
	}}
	handler := mcpRetrieveMaterials(deps)

	req := makeCallToolRequest("retrieve_materials", map[string]interface{}{
		"query":   "photosynthesis",
		"subject": "biology",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var chunks []map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &chunks); err != nil {
		t.Fatalf("decoding tool output: %v", err)
	}
	if len(chunks) != 1 || chunks[0]["chunk_id"] != "c1" {
		t.Errorf("chunks = %+v", chunks)
	}
}

func TestMCPTool_RetrieveMaterials_NoMaterial(t *testing.T) {
	deps := testMCPDeps()
	deps.Retriever = &mockMCPRetriever{err: retrieval.ErrNoRelevantMaterial}
	handler := mcpRetrieveMaterials(deps)

	req := makeCallToolRequest("retrieve_materials", map[string]interface{}{
		"query":   "off-topic",
		"subject": "biology",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatal("no-material must not be a tool error")
	}
	if got := toolText(t, result); got != "[]" {
		t.Errorf("output = %q, want []", got)
	}
}

func TestMCPTool_RetrieveMaterials_Error(t *testing.T) {
	deps := testMCPDeps()
	deps.Retriever = &mockMCPRetriever{err: errors.New("index unavailable")}
	handler := mcpRetrieveMaterials(deps)

	req := makeCallToolRequest("retrieve_materials", map[string]interface{}{
		"query":   "q",
		"subject": "biology",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for failed retrieval")
	}
}

func TestMCPTool_GetProfile(t *testing.T) {
	handler := mcpGetProfile(testMCPDeps())

	req := makeCallToolRequest("get_profile", map[string]interface{}{
		"student_id": "alice",
		"subject":    "biology",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var pref map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &pref); err != nil {
		t.Fatalf("decoding tool output: %v", err)
	}
	if pref["level"] != "basic" {
		t.Errorf("profile = %+v", pref)
	}
}

func TestMCPResource_Performance(t *testing.T) {
	deps := testMCPDeps()
	deps.Overviews.(*mockOverviews).overviewFn = func(context.Context) ([]performance.Overview, error) {
		return []performance.Overview{{AgentID: "bio-agent", OverallScore: 88}}, nil
	}
	handler := mcpResourcePerformance(deps)

	req := mcp.ReadResourceRequest{Params: mcp.ReadResourceParams{URI: "tutord://performance"}}
	contents, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d entries", len(contents))
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var entries []performance.Overview
	if err := json.Unmarshal([]byte(text.Text), &entries); err != nil {
		t.Fatalf("decoding resource: %v", err)
	}
	if len(entries) != 1 || entries[0].AgentID != "bio-agent" {
		t.Errorf("entries = %+v", entries)
	}
}
