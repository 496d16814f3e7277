package usecase

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Summarizer composes the final answer from extracted context. It is a pure
// function of its inputs and never touches conversation memory.
type Summarizer struct {
	llm     LLMClient
	model   string
	profile Profile
	timeout time.Duration
}

func NewSummarizer(llm LLMClient, model string, profile Profile, timeout time.Duration) (*Summarizer, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("usecase: summarizer model must not be empty")
	}
	return &Summarizer{llm: llm, model: model, profile: profile, timeout: orDefault(timeout, defaultLLMTimeout)}, nil
}

// Summarize streams the answer, forwarding each delta to onDelta when set, and
// returns the assembled text once the stream completes.
func (s *Summarizer) Summarize(ctx context.Context, contextText, question string, onDelta func(string)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	answer, err := s.llm.Stream(ctx, completionRequest(s.model, buildSummarizerMessages(s.profile, contextText, question)), onDelta)
	if err != nil {
		return "", llmError("summarizer", err)
	}
	return answer, nil
}
