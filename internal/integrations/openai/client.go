package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"concierge-agent/internal/domain"
)

const defaultBaseURL = "https://api.openai.com/v1"

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPStatusError) Unwrap() error {
	return e.Err
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused OpenAI-compatible client for chat completions with
// function calling and token streaming.
type Client struct {
	baseURL    string
	httpClient *http.Client
	api        *openai.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("openai: API key must not be empty")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = apiBaseURL(c.baseURL)
	if c.httpClient != nil {
		cfg.HTTPClient = c.httpClient
	}
	c.api = openai.NewClientWithConfig(cfg)
	return c, nil
}

// apiBaseURL normalizes a base URL so that it ends with the /v1 API root.
func apiBaseURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		return defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}

// Complete runs one chat completion. The result is either text or the tool
// invocation requests the model chose.
func (c *Client) Complete(ctx context.Context, in domain.CompletionRequest) (domain.Completion, error) {
	req, err := buildRequest(in)
	if err != nil {
		return domain.Completion{}, err
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("openai: request failed: %w", mapError(err))
	}
	if len(resp.Choices) == 0 {
		return domain.Completion{}, errors.New("openai: no choices in response")
	}
	msg := resp.Choices[0].Message

	out := domain.Completion{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	slog.Debug("llm completion",
		"model", in.Model,
		"messages", len(in.Messages),
		"tools", len(in.Tools),
		"tool_calls", len(out.ToolCalls),
		"duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

// Stream runs a chat completion with token streaming. onDelta, when not nil,
// receives each text delta in order; the concatenated text is returned.
func (c *Client) Stream(ctx context.Context, in domain.CompletionRequest, onDelta func(string)) (string, error) {
	req, err := buildRequest(in)
	if err != nil {
		return "", err
	}

	start := time.Now()
	stream, err := c.api.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai: stream request failed: %w", mapError(err))
	}
	defer func() { _ = stream.Close() }()

	var sb strings.Builder
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", fmt.Errorf("openai: stream receive: %w", mapError(recvErr))
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}

	slog.Debug("llm stream completed",
		"model", in.Model,
		"content_length", sb.Len(),
		"duration_ms", time.Since(start).Milliseconds())
	return sb.String(), nil
}

func buildRequest(in domain.CompletionRequest) (openai.ChatCompletionRequest, error) {
	if in.Model == "" {
		return openai.ChatCompletionRequest{}, errors.New("openai: model must not be empty")
	}

	req := openai.ChatCompletionRequest{
		Model:       in.Model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(in.Messages)),
		Temperature: temperature(in.Temperature),
	}
	for _, m := range in.Messages {
		req.Messages = append(req.Messages, toOpenAIMessage(m))
	}

	if len(in.Tools) > 0 {
		req.Tools = make([]openai.Tool, 0, len(in.Tools))
		for _, t := range in.Tools {
			req.Tools = append(req.Tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		req.ParallelToolCalls = false
		req.ToolChoice = "auto"
	}
	if in.ForceTool != "" {
		if !hasTool(in.Tools, in.ForceTool) {
			return openai.ChatCompletionRequest{}, fmt.Errorf("openai: forced tool %q is not among the request tools", in.ForceTool)
		}
		req.ToolChoice = openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: in.ForceTool},
		}
	}
	return req, nil
}

// temperature maps 0 to the smallest positive float32; the SDK omits a zero
// temperature from the payload, which would select the server default.
func temperature(t float32) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

func hasTool(specs []domain.ToolSpec, name string) bool {
	for _, s := range specs {
		if s.Name == name {
			return true
		}
	}
	return false
}

func toOpenAIMessage(m domain.ChatMessage) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return msg
}

// mapError exposes the upstream HTTP status through HTTPStatusError while
// keeping the SDK error in the chain.
func mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &HTTPStatusError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &HTTPStatusError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.HTTPStatus, Err: err}
	}
	return err
}
