package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"concierge-agent/internal/domain"
)

// ---------------------------------------------------------------------------
// apiBaseURL helper
// ---------------------------------------------------------------------------

func TestAPIBaseURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://api.openai.com/v1", "https://api.openai.com/v1"},
		{"https://api.openai.com/v1/", "https://api.openai.com/v1"},
		{"http://localhost:8080", "http://localhost:8080/v1"},
		{"", "https://api.openai.com/v1"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, apiBaseURL(tc.base), "base=%q", tc.base)
	}
}

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient_EmptyKey(t *testing.T) {
	_, err := NewClient("  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "API key")
}

func TestNewClient_Valid(t *testing.T) {
	c, err := NewClient("sk-test")
	require.NoError(t, err)
	require.Equal(t, "https://api.openai.com/v1", c.baseURL)
	require.NotNil(t, c.api)
}

// ---------------------------------------------------------------------------
// Client.Complete
// ---------------------------------------------------------------------------

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(
		"sk-test",
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	)
	require.NoError(t, err)
	return c
}

func intentSpec() domain.ToolSpec {
	return domain.ToolSpec{
		Name:        "extract_intent",
		Description: "Extract the intent.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"subject": map[string]any{"type": "string"},
			},
		},
	}
}

func TestClient_Complete_TextAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		reqBody, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Contains(t, string(reqBody), `"temperature":`)
		require.NotContains(t, string(reqBody), `"tools"`)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-123",
			"object": "chat.completion",
			"created": 1670000000,
			"choices": [{
				"index": 0,
				"message": { "role": "assistant", "content": "Hello from mock" },
				"finish_reason": "stop"
			}]
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	out, err := c.Complete(context.Background(), domain.CompletionRequest{
		Model:    "gpt-mock",
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	require.Equal(t, "Hello from mock", out.Content)
	require.False(t, out.HasToolCalls())
}

func TestClient_Complete_ForcedToolCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		choice, ok := body["tool_choice"].(map[string]any)
		require.True(t, ok, "tool_choice must be an object when a tool is forced")
		require.Equal(t, "function", choice["type"])
		require.Equal(t, "extract_intent", choice["function"].(map[string]any)["name"])
		require.Equal(t, false, body["parallel_tool_calls"])
		require.Len(t, body["tools"], 1)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-124",
			"object": "chat.completion",
			"choices": [{
				"index": 0,
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "extract_intent", "arguments": "{\"subject\":\"Paris\"}"}
					}]
				},
				"finish_reason": "tool_calls"
			}]
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	out, err := c.Complete(context.Background(), domain.CompletionRequest{
		Model:     "gpt-mock",
		Messages:  []domain.ChatMessage{{Role: domain.RoleUser, Content: "Paris weather?"}},
		Tools:     []domain.ToolSpec{intentSpec()},
		ForceTool: "extract_intent",
	})
	require.NoError(t, err)
	require.True(t, out.HasToolCalls())
	require.Equal(t, domain.ToolCall{ID: "call_1", Name: "extract_intent", Arguments: `{"subject":"Paris"}`}, out.ToolCalls[0])
}

func TestClient_Complete_ForcedToolMustBeOffered(t *testing.T) {
	c, err := NewClient("sk-test")
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), domain.CompletionRequest{Model: "gpt-mock", ForceTool: "missing"})
	require.ErrorContains(t, err, "forced tool")
}

func TestClient_Complete_EmptyModel(t *testing.T) {
	c, err := NewClient("sk-test")
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), domain.CompletionRequest{})
	require.ErrorContains(t, err, "model must not be empty")
}

func TestClient_Complete_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Complete(context.Background(), domain.CompletionRequest{Model: "gpt-mock"})
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusTooManyRequests, statusErr.HTTPStatusCode())
	require.Contains(t, err.Error(), "429")
}

func TestClient_Complete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Complete(context.Background(), domain.CompletionRequest{Model: "gpt-mock"})
	require.ErrorContains(t, err, "no choices")
}

func TestClient_Complete_ContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := newTestClient(t, srv)
	_, err := c.Complete(ctx, domain.CompletionRequest{Model: "gpt-mock"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// ---------------------------------------------------------------------------
// Client.Stream
// ---------------------------------------------------------------------------

func sseChunk(content string) string {
	return fmt.Sprintf(`data: {"id":"c","object":"chat.completion.chunk","created":1,"model":"gpt-mock","choices":[{"index":0,"delta":{"content":%q}}]}`+"\n\n", content)
}

func TestClient_Stream_AssemblesDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqBody, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Contains(t, string(reqBody), `"stream":true`)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Paris ", "is ", "sunny."} {
			_, _ = io.WriteString(w, sseChunk(part))
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	var deltas []string
	c := newTestClient(t, srv)
	text, err := c.Stream(context.Background(), domain.CompletionRequest{
		Model:    "gpt-mock",
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "weather?"}},
	}, func(d string) { deltas = append(deltas, d) })
	require.NoError(t, err)
	require.Equal(t, "Paris is sunny.", text)
	require.Equal(t, []string{"Paris ", "is ", "sunny."}, deltas)
	require.Equal(t, text, strings.Join(deltas, ""))
}

func TestClient_Stream_NilCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sseChunk("ok"))
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	text, err := c.Stream(context.Background(), domain.CompletionRequest{Model: "gpt-mock"}, nil)
	require.NoError(t, err)
	require.Equal(t, "ok", text)
}

func TestClient_Stream_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Stream(context.Background(), domain.CompletionRequest{Model: "gpt-mock"}, nil)
	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

// ---------------------------------------------------------------------------
// request mapping
// ---------------------------------------------------------------------------

func TestBuildRequest_MapsToolHistory(t *testing.T) {
	req, err := buildRequest(domain.CompletionRequest{
		Model: "gpt-mock",
		Messages: []domain.ChatMessage{
			{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: "call_1", Name: "get_weather", Arguments: `{"location_id":"1"}`}}},
			{Role: domain.RoleTool, ToolCallID: "call_1", Content: "sunny"},
		},
	})
	require.NoError(t, err)
	require.Len(t, req.Messages, 2)
	require.Equal(t, "get_weather", req.Messages[0].ToolCalls[0].Function.Name)
	require.Equal(t, "call_1", req.Messages[1].ToolCallID)
	require.Greater(t, req.Temperature, float32(0))
	require.Nil(t, req.ToolChoice)
}
