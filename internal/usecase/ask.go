package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"concierge-agent/internal/domain"
	"concierge-agent/internal/metrics"
)

const (
	defaultMaxQuestion  = 500
	defaultLLMTimeout   = 30 * time.Second
	defaultToolTimeout  = 10 * time.Second
	defaultStoreTimeout = 5 * time.Second
	outcomeOK           = "ok"
)

type LLMClient interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error)
	Stream(ctx context.Context, req domain.CompletionRequest, onDelta func(string)) (string, error)
}

// MemoryStore is a per-conversation ordered log of memory entries.
// A window of zero or less returns the full history.
type MemoryStore interface {
	History(ctx context.Context, conversationID string, window int) ([]domain.MemoryEntry, error)
	Append(ctx context.Context, conversationID string, entry domain.MemoryEntry) error
}

// CommitPolicy decides when a turn's memory entry is written.
type CommitPolicy string

const (
	// CommitOnSuccess writes the entry only after the answer is produced.
	CommitOnSuccess CommitPolicy = "on_success"
	// CommitAfterTagging writes the entry as soon as the intent is extracted,
	// even if the rest of the turn fails.
	CommitAfterTagging CommitPolicy = "after_tagging"
)

func ParseCommitPolicy(s string) (CommitPolicy, error) {
	switch p := CommitPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return CommitOnSuccess, nil
	case CommitOnSuccess, CommitAfterTagging:
		return p, nil
	default:
		return "", fmt.Errorf("usecase: unknown commit policy %q", s)
	}
}

type Options struct {
	TaggerModel     string
	RouterModel     string
	SummarizerModel string

	LLMTimeout   time.Duration
	ToolTimeout  time.Duration
	StoreTimeout time.Duration

	// MemoryWindow bounds the history handed to the tagger. Zero is unbounded.
	MemoryWindow   int
	MaxToolHops    int
	Commit         CommitPolicy
	MaxQuestionLen int

	Logger *slog.Logger
}

type AskService struct {
	memory     MemoryStore
	profile    Profile
	tagger     *Tagger
	extractor  *Extractor
	summarizer *Summarizer
	locks      *sessionLocks
	logger     *slog.Logger

	window         int
	commit         CommitPolicy
	storeTimeout   time.Duration
	maxQuestionLen int
}

type AskInput struct {
	Question       string
	ConversationID string
	// OnDelta receives answer text as it streams. Optional.
	OnDelta func(string)
}

type AskOutput struct {
	Answer         string
	ConversationID string
	Intent         domain.Intent
}

func NewAskService(llm LLMClient, memory MemoryStore, profile Profile, opts Options) (*AskService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if memory == nil {
		return nil, errors.New("usecase: memory store must not be nil")
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if opts.Commit == "" {
		opts.Commit = CommitOnSuccess
	}
	if opts.Commit != CommitOnSuccess && opts.Commit != CommitAfterTagging {
		return nil, fmt.Errorf("usecase: unknown commit policy %q", opts.Commit)
	}
	if opts.MemoryWindow < 0 {
		return nil, errors.New("usecase: memory window must not be negative")
	}
	if opts.MaxQuestionLen <= 0 {
		opts.MaxQuestionLen = defaultMaxQuestion
	}
	opts.Logger = loggerOrDefault(opts.Logger)

	tagger, err := NewTagger(llm, opts.TaggerModel, profile, opts.LLMTimeout)
	if err != nil {
		return nil, err
	}
	extractor, err := NewExtractor(llm, opts.RouterModel, profile, opts)
	if err != nil {
		return nil, err
	}
	summarizer, err := NewSummarizer(llm, opts.SummarizerModel, profile, opts.LLMTimeout)
	if err != nil {
		return nil, err
	}
	return &AskService{
		memory:         memory,
		profile:        profile,
		tagger:         tagger,
		extractor:      extractor,
		summarizer:     summarizer,
		locks:          newSessionLocks(),
		logger:         opts.Logger,
		window:         opts.MemoryWindow,
		commit:         opts.Commit,
		storeTimeout:   orDefault(opts.StoreTimeout, defaultStoreTimeout),
		maxQuestionLen: opts.MaxQuestionLen,
	}, nil
}

// Domain names the profile this service answers for.
func (s *AskService) Domain() string {
	return s.profile.Name
}

// Ask runs one turn: tag, extract, summarize, remember. Turns on the same
// conversation are serialized. A failed turn still returns the conversation
// id in out whenever one is known.
func (s *AskService) Ask(ctx context.Context, in AskInput) (out AskOutput, err error) {
	defer func() {
		outcome := outcomeOK
		if err != nil {
			outcome = strings.ToLower(string(CodeOf(err)))
		}
		metrics.TurnsTotal.WithLabelValues(s.profile.Name, outcome).Inc()
	}()

	convID := strings.TrimSpace(in.ConversationID)
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return AskOutput{ConversationID: convID}, newError(ErrorInvalidInput, "empty_question", nil)
	}
	if utf8.RuneCountInString(question) > s.maxQuestionLen {
		return AskOutput{ConversationID: convID}, newError(ErrorInvalidInput, "question_too_long", nil)
	}
	if convID == "" {
		convID = newUUID()
	}
	logger := s.logger.With("conversation_id", convID, "domain", s.profile.Name)
	// Failures after this point still report convID so the caller can
	// continue the conversation, including any entry already committed.
	failed := AskOutput{ConversationID: convID}

	unlock, err := s.locks.lock(ctx, convID)
	if err != nil {
		if isTimeout(err) {
			return failed, newError(ErrorTimeout, "session_busy", err)
		}
		return failed, newError(ErrorInternal, "session_lock_canceled", err)
	}
	defer unlock()

	history, err := s.history(ctx, convID)
	if err != nil {
		return failed, err
	}

	start := time.Now()
	intent, err := s.tagger.ExtractIntent(ctx, question, history)
	metrics.ObserveStage("tag", start)
	if err != nil {
		logger.Debug("tagging failed", "err", err)
		return failed, err
	}
	logger.Debug("intent extracted", "subject", intent.Subject, "topic", intent.Topic)

	entry := domain.MemoryEntry{UserText: question, Summary: intent.Summary()}
	if s.commit == CommitAfterTagging {
		if err := s.remember(ctx, convID, entry); err != nil {
			return failed, err
		}
	}

	start = time.Now()
	info, err := s.extractor.GetInformation(ctx, intent)
	metrics.ObserveStage("extract", start)
	if err != nil {
		logger.Debug("extraction failed", "err", err)
		return failed, err
	}

	start = time.Now()
	answer, err := s.summarizer.Summarize(ctx, info, question, in.OnDelta)
	metrics.ObserveStage("summarize", start)
	if err != nil {
		logger.Debug("summarization failed", "err", err)
		return failed, err
	}

	if s.commit == CommitOnSuccess {
		if err := s.remember(ctx, convID, entry); err != nil {
			return failed, err
		}
	}

	return AskOutput{
		Answer:         answer,
		ConversationID: convID,
		Intent:         intent,
	}, nil
}

func (s *AskService) history(ctx context.Context, convID string) ([]domain.MemoryEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	history, err := s.memory.History(ctx, convID, s.window)
	if err != nil {
		if isTimeout(err) {
			return nil, newError(ErrorTimeout, "memory_read_timeout", err)
		}
		return nil, newError(ErrorInternal, "memory_read_error", err)
	}
	return history, nil
}

func (s *AskService) remember(ctx context.Context, convID string, entry domain.MemoryEntry) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.memory.Append(ctx, convID, entry); err != nil {
		if isTimeout(err) {
			return newError(ErrorTimeout, "memory_write_timeout", err)
		}
		return newError(ErrorInternal, "memory_write_error", err)
	}
	return nil
}

func completionRequest(model string, messages []domain.ChatMessage) domain.CompletionRequest {
	return domain.CompletionRequest{Model: model, Temperature: 0, Messages: messages}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

var newUUID = func() string {
	return uuid.NewString()
}
