package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server    *httptest.Server
	requests  []recordedRequest
	responses map[string]string
}

func newTestServer() *testServer {
	ts := &testServer{responses: map[string]string{}}
	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   string(body),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		resp, ok := ts.responses[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(resp))
	}))
	return ts
}

func (ts *testServer) close() {
	ts.server.Close()
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

func TestClientAsk(t *testing.T) {
	ts := newTestServer()
	defer ts.close()
	ts.responses["POST /ask"] = `{"turn_id":"turn-9","intent":"chat","response":"Plants make sugar from light."}`

	client := ts.client()
	resp, err := client.post(context.Background(), "/ask", map[string]any{
		"student_id": "alice",
		"subject":    "biology",
		"query":      "what is photosynthesis?",
	})
	if err != nil {
		t.Fatalf("post: %v", err)
	}

	var result struct {
		TurnID   string `json:"turn_id"`
		Response string `json:"response"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.TurnID != "turn-9" {
		t.Errorf("turn id = %q, want turn-9", result.TurnID)
	}
	if result.Response != "Plants make sugar from light." {
		t.Errorf("unexpected response %q", result.Response)
	}

	req := ts.requests[0]
	if req.Auth != "Bearer test-token" {
		t.Errorf("auth header = %q", req.Auth)
	}
	if !strings.Contains(req.Body, `"student_id":"alice"`) {
		t.Errorf("body missing student_id: %s", req.Body)
	}
}

func TestClientFeedback(t *testing.T) {
	ts := newTestServer()
	defer ts.close()
	ts.responses["POST /feedback"] = `{"status":"recorded"}`

	client := ts.client()
	resp, err := client.post(context.Background(), "/feedback", map[string]any{
		"student_id": "alice",
		"subject":    "biology",
		"turn_id":    "turn-9",
		"feedback":   "like",
	})
	if err != nil {
		t.Fatalf("post: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result["status"] != "recorded" {
		t.Errorf("status = %q, want recorded", result["status"])
	}
}

func TestClientTrain(t *testing.T) {
	ts := newTestServer()
	defer ts.close()
	ts.responses["POST /train"] = `{"updates":12}`

	client := ts.client()
	resp, err := client.post(context.Background(), "/train", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}

	var result map[string]int
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result["updates"] != 12 {
		t.Errorf("updates = %d, want 12", result["updates"])
	}
}

func TestClientProfile(t *testing.T) {
	ts := newTestServer()
	defer ts.close()
	ts.responses["GET /students/alice/subjects/biology/profile"] = `{"level":"advanced","tone":"formal"}`

	client := ts.client()
	resp, err := client.get(context.Background(), "/students/alice/subjects/biology/profile")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	var pref map[string]any
	if err := decodeJSON(resp, &pref); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pref["level"] != "advanced" {
		t.Errorf("level = %v, want advanced", pref["level"])
	}
}

func TestClientPerformanceList(t *testing.T) {
	ts := newTestServer()
	defer ts.close()
	ts.responses["GET /performance"] = `[{"agent_id":"biology","overall_score":82.5,"performance_level":"good","total_conversations":40,"health_status":"healthy"}]`

	client := ts.client()
	resp, err := client.get(context.Background(), "/performance")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	var rows []overviewRow
	if err := decodeJSON(resp, &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].AgentID != "biology" || rows[0].OverallScore != 82.5 {
		t.Errorf("unexpected row: %+v", rows[0])
	}
}

func TestClientAttentionThreshold(t *testing.T) {
	ts := newTestServer()
	defer ts.close()
	ts.responses["GET /performance/attention"] = `[]`

	client := ts.client()
	resp, err := client.get(context.Background(), "/performance/attention?threshold=45")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	var rows []overviewRow
	if err := decodeJSON(resp, &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("got %d rows, want 0", len(rows))
	}
	if got := ts.requests[0].Path; got != "/performance/attention?threshold=45" {
		t.Errorf("request path = %q", got)
	}
}

func TestClientErrorResponse(t *testing.T) {
	ts := newTestServer()
	defer ts.close()

	client := ts.client()
	resp, err := client.get(context.Background(), "/performance/nope/extra")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	var out any
	err = decodeJSON(resp, &out)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error should mention status: %v", err)
	}
}

func TestClientUnreachable(t *testing.T) {
	client := &apiClient{
		baseURL:    "http://127.0.0.1:1",
		token:      "test-token",
		httpClient: &http.Client{},
	}
	_, err := client.get(context.Background(), "/performance")
	if err == nil {
		t.Fatal("expected error for unreachable server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error should hint the server is down: %v", err)
	}
}

func TestDecodeJSONIndirect(t *testing.T) {
	ts := newTestServer()
	defer ts.close()
	ts.responses["GET /performance/biology"] = `{"agent_id":"biology","total_conversations":3}`

	client := ts.client()
	resp, err := client.get(context.Background(), "/performance/biology")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	var report map[string]json.RawMessage
	if err := decodeJSON(resp, &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := report["agent_id"]; !ok {
		t.Error("report missing agent_id")
	}
}
