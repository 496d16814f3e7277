package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"concierge-agent/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

type Asker interface {
	Ask(ctx context.Context, in usecase.AskInput) (usecase.AskOutput, error)
}

type Handler struct {
	uc Asker
}

type askRequest struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversationId"`
}

type askResponse struct {
	Answer         string `json:"answer"`
	ConversationID string `json:"conversationId"`
	Subject        string `json:"subject,omitempty"`
	Topic          string `json:"topic,omitempty"`
}

type errorResponse struct {
	Error          string `json:"error"`
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

func NewHandler(uc Asker) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	return &Handler{uc: uc}, nil
}

// Handle serves one API Gateway request. Failures never leak detail to the
// caller: the body carries the error code, the fixed fallback message and the
// conversation id to continue with.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := slog.Default().With("correlation_id", correlationID)

	var in askRequest
	if err := json.Unmarshal([]byte(req.Body), &in); err != nil {
		logger.Debug("invalid request body", "err", err)
		return h.failure(correlationID, usecase.ErrorInvalidInput, ""), nil
	}

	out, err := h.uc.Ask(ctx, usecase.AskInput{
		Question:       in.Question,
		ConversationID: in.ConversationID,
	})
	if err != nil {
		code := usecase.CodeOf(err)
		logger.Debug("turn failed", "code", code, "err", err)
		if statusFor(code) >= http.StatusInternalServerError {
			logger.Warn("turn failed", "code", code)
		}
		return h.failure(correlationID, code, out.ConversationID), nil
	}

	return jsonResponse(http.StatusOK, correlationID, askResponse{
		Answer:         out.Answer,
		ConversationID: out.ConversationID,
		Subject:        out.Intent.Subject,
		Topic:          out.Intent.Topic,
	}), nil
}

func (h *Handler) failure(correlationID string, code usecase.ErrorCode, conversationID string) events.APIGatewayProxyResponse {
	return jsonResponse(statusFor(code), correlationID, errorResponse{
		Error:          string(code),
		Message:        usecase.FallbackMessage,
		ConversationID: conversationID,
	})
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorSchemaValidation, usecase.ErrorSubjectNotFound:
		return http.StatusUnprocessableEntity
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorTimeout:
		return http.StatusGatewayTimeout
	case usecase.ErrorUpstream, usecase.ErrorToolNotFound, usecase.ErrorInputValidation,
		usecase.ErrorMalformedResponse, usecase.ErrorToolExecution:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func jsonResponse(status int, correlationID string, body any) events.APIGatewayProxyResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(raw),
	}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
