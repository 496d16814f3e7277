package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"concierge-agent/internal/domain"
)

func TestSummarizer_Summarize(t *testing.T) {
	llm := &fakeLLM{chunks: []string{"Expect ", "sunshine."}}
	s, err := NewSummarizer(llm, "summarizer-model", testProfile(t, &invocations{}), time.Second)
	require.NoError(t, err)

	var deltas []string
	answer, err := s.Summarize(context.Background(), parisWeather, "Is it sunny?", func(d string) {
		deltas = append(deltas, d)
	})
	require.NoError(t, err)
	require.Equal(t, "Expect sunshine.", answer)
	require.Equal(t, []string{"Expect ", "sunshine."}, deltas)

	require.Len(t, llm.streamRequests, 1)
	req := llm.streamRequests[0]
	require.Zero(t, req.Temperature)
	require.Empty(t, req.Tools)
	require.Len(t, req.Messages, 2)
	require.Equal(t, domain.RoleSystem, req.Messages[0].Role)
	require.Contains(t, req.Messages[0].Content, "using only the provided context")
	require.Equal(t, "Context : "+parisWeather+" Question : Is it sunny?", req.Messages[1].Content)
}

func TestSummarizer_IsIdempotentWithDeterministicModel(t *testing.T) {
	llm := &fakeLLM{chunks: []string{"Same ", "answer."}}
	s, err := NewSummarizer(llm, "m", testProfile(t, &invocations{}), time.Second)
	require.NoError(t, err)

	first, err := s.Summarize(context.Background(), "ctx", "q", nil)
	require.NoError(t, err)
	second, err := s.Summarize(context.Background(), "ctx", "q", nil)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, llm.streamRequests[0], llm.streamRequests[1])
}

func TestSummarizer_Errors(t *testing.T) {
	_, err := NewSummarizer(nil, "m", Profile{}, 0)
	require.Error(t, err)

	llm := &fakeLLM{stream: func(context.Context, domain.CompletionRequest) error {
		return statusError{code: 429}
	}}
	s, err := NewSummarizer(llm, "m", testProfile(t, &invocations{}), time.Second)
	require.NoError(t, err)
	_, err = s.Summarize(context.Background(), "ctx", "q", nil)
	expectAskError(t, err, ErrorRateLimited)

	llm.stream = func(context.Context, domain.CompletionRequest) error { return errors.New("boom") }
	_, err = s.Summarize(context.Background(), "ctx", "q", nil)
	expectAskError(t, err, ErrorUpstream)
}
