package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tutorkit/tutord/internal/pipeline"
	"github.com/tutorkit/tutord/internal/policy"
	"github.com/tutorkit/tutord/internal/retrieval"
)

const mcpRetrieveLimit = 20

// MCPRetriever abstracts semantic search over the learning materials
// for the MCP layer.
type MCPRetriever interface {
	Retrieve(ctx context.Context, query, subject string, topK int) ([]retrieval.Chunk, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Tutor     Tutor
	Retriever MCPRetriever
	Profiles  ProfileLoader
	Overviews OverviewProvider
}

// NewMCPServer creates an MCP server exposing the tutoring pipeline as
// tools for agent frontends.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"tutord",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("tutord — retrieval-grounded tutoring: ask questions, run quizzes, inspect student profiles and agent performance."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_tutor",
			mcp.WithDescription("Ask the tutor a question on behalf of a student. Handles quizzes, study plans and notes requests too."),
			mcp.WithString("student_id", mcp.Description("Student identifier"), mcp.Required()),
			mcp.WithString("subject", mcp.Description("Subject, e.g. biology"), mcp.Required()),
			mcp.WithString("query", mcp.Description("The student's message"), mcp.Required()),
			mcp.WithString("class", mcp.Description("Class or grade level")),
		),
		mcpAskTutor(deps),
	)

	s.AddTool(
		mcp.NewTool("retrieve_materials",
			mcp.WithDescription("Semantically search a subject's learning materials and return relevant chunks."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithString("subject", mcp.Description("Subject collection to search"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 3)")),
		),
		mcpRetrieveMaterials(deps),
	)

	s.AddTool(
		mcp.NewTool("get_profile",
			mcp.WithDescription("Return a student's learning profile for a subject."),
			mcp.WithString("student_id", mcp.Description("Student identifier"), mcp.Required()),
			mcp.WithString("subject", mcp.Description("Subject"), mcp.Required()),
		),
		mcpGetProfile(deps),
	)

	s.AddTool(
		mcp.NewTool("submit_feedback",
			mcp.WithDescription("Record the student's like or dislike of a tutoring turn."),
			mcp.WithString("student_id", mcp.Description("Student identifier"), mcp.Required()),
			mcp.WithString("subject", mcp.Description("Subject"), mcp.Required()),
			mcp.WithString("turn_id", mcp.Description("Turn ID returned by ask_tutor"), mcp.Required()),
			mcp.WithString("feedback", mcp.Description("like or dislike"), mcp.Required()),
		),
		mcpSubmitFeedback(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"tutord://performance",
			"Agent Performance Overview",
			mcp.WithResourceDescription("All tutoring agents ranked by overall score, as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePerformance(deps),
	)

	return s
}

func mcpAskTutor(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		studentID, err := req.RequireString("student_id")
		if err != nil {
			return mcpError("student_id is required"), nil
		}
		subject, err := req.RequireString("subject")
		if err != nil {
			return mcpError("subject is required"), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		class := req.GetString("class", "")

		resp, err := deps.Tutor.Ask(ctx, pipeline.AskRequest{
			StudentID: studentID,
			Subject:   subject,
			Class:     class,
			Query:     query,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		b, err := json.Marshal(resp)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal response: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRetrieveMaterials(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		subject, err := req.RequireString("subject")
		if err != nil {
			return mcpError("subject is required"), nil
		}

		limit := req.GetInt("limit", 3)
		if limit <= 0 {
			limit = 3
		}
		if limit > mcpRetrieveLimit {
			limit = mcpRetrieveLimit
		}

		chunks, err := deps.Retriever.Retrieve(ctx, query, subject, limit)
		if errors.Is(err, retrieval.ErrNoRelevantMaterial) {
			return mcpText("[]"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("retrieval failed: %v", err)), nil
		}

		type chunkResult struct {
			ChunkID    string  `json:"chunk_id"`
			DocumentID string  `json:"document_id"`
			Text       string  `json:"text"`
			Score      float64 `json:"score"`
		}
		results := make([]chunkResult, len(chunks))
		for i, c := range chunks {
			results[i] = chunkResult{
				ChunkID:    c.ChunkID,
				DocumentID: c.DocumentID,
				Text:       c.Text,
				Score:      c.Score,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetProfile(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		studentID, err := req.RequireString("student_id")
		if err != nil {
			return mcpError("student_id is required"), nil
		}
		subject, err := req.RequireString("subject")
		if err != nil {
			return mcpError("subject is required"), nil
		}

		pref, err := deps.Profiles.Load(ctx, studentID, subject)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load profile: %v", err)), nil
		}

		b, err := json.Marshal(pref)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal profile: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSubmitFeedback(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		studentID, err := req.RequireString("student_id")
		if err != nil {
			return mcpError("student_id is required"), nil
		}
		subject, err := req.RequireString("subject")
		if err != nil {
			return mcpError("subject is required"), nil
		}
		turnID, err := req.RequireString("turn_id")
		if err != nil {
			return mcpError("turn_id is required"), nil
		}
		feedback, err := req.RequireString("feedback")
		if err != nil {
			return mcpError("feedback is required"), nil
		}

		if err := deps.Tutor.Feedback(ctx, studentID, subject, "", turnID, policy.Feedback(feedback)); err != nil {
			return mcpError(fmt.Sprintf("failed to record feedback: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Recorded %s on turn %s", feedback, turnID)), nil
	}
}

func mcpResourcePerformance(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		entries, err := deps.Overviews.Overview(ctx)
		if err != nil {
			return nil, fmt.Errorf("building performance overview: %w", err)
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("marshaling performance overview: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
