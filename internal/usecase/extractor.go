package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"concierge-agent/internal/domain"
	"concierge-agent/internal/metrics"
	"concierge-agent/internal/tools"
)

// Extractor resolves the intent's subject and gathers topic information by
// letting the router model pick a capability tool.
type Extractor struct {
	llm         LLMClient
	model       string
	profile     Profile
	llmTimeout  time.Duration
	toolTimeout time.Duration
	maxHops     int
	logger      *slog.Logger
}

func NewExtractor(llm LLMClient, model string, profile Profile, opts Options) (*Extractor, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("usecase: router model must not be empty")
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	maxHops := opts.MaxToolHops
	if maxHops <= 0 {
		maxHops = 1
	}
	return &Extractor{
		llm:         llm,
		model:       model,
		profile:     profile,
		llmTimeout:  orDefault(opts.LLMTimeout, defaultLLMTimeout),
		toolTimeout: orDefault(opts.ToolTimeout, defaultToolTimeout),
		maxHops:     maxHops,
		logger:      loggerOrDefault(opts.Logger),
	}, nil
}

// GetInformation returns the context text for intent: the output of the tool
// the router selected, or the router's own answer when it selected none.
func (e *Extractor) GetInformation(ctx context.Context, intent domain.Intent) (string, error) {
	subject, err := e.ResolveSubject(ctx, intent.Subject)
	if err != nil {
		return "", err
	}
	return e.Chain(ctx, e.profile.GroundingQuery(subject, intent.Topic))
}

type lookupArgs struct {
	Query string `json:"query"`
}

// ResolveSubject calls the lookup tool for name. A miss is ErrorSubjectNotFound.
func (e *Extractor) ResolveSubject(ctx context.Context, name string) (domain.Subject, error) {
	args, err := json.Marshal(lookupArgs{Query: name})
	if err != nil {
		return domain.Subject{}, newError(ErrorInternal, "lookup_args_encode", err)
	}
	result, err := e.invoke(ctx, e.profile.LookupTool, args)
	if err != nil {
		return domain.Subject{}, err
	}
	subject, ok := result.Data.(domain.Subject)
	if !ok || strings.TrimSpace(subject.ID) == "" {
		return domain.Subject{}, newError(ErrorSubjectNotFound, "no_match_for_"+name, nil)
	}
	if subject.CanonicalName == "" {
		subject.CanonicalName = name
	}
	return subject, nil
}

// Chain sends the grounding query to the router model with the full tool
// registry attached. A direct answer short-circuits without any dispatch.
// With more than one hop allowed, each tool result is fed back to the model
// and a repeated call stops the loop with the last tool output.
func (e *Extractor) Chain(ctx context.Context, groundingQuery string) (string, error) {
	messages := buildRouterMessages(e.profile, groundingQuery)
	specs := e.profile.Tools.Specs()
	seen := make(map[string]struct{})
	var lastOutput string

	for hop := 0; ; hop++ {
		out, err := e.route(ctx, messages, specs)
		if err != nil {
			return "", err
		}
		if !out.HasToolCalls() {
			if hop > 0 && strings.TrimSpace(out.Content) == "" {
				return lastOutput, nil
			}
			return out.Content, nil
		}

		call := out.ToolCalls[0]
		if len(out.ToolCalls) > 1 {
			e.logger.Warn("router requested several tools, dispatching the first",
				"tool", call.Name, "requested", len(out.ToolCalls))
		}
		key := call.Name + ":" + canonicalArgs(call.Arguments)
		if _, dup := seen[key]; dup {
			e.logger.Debug("repeated tool call, stopping", "tool", call.Name)
			return lastOutput, nil
		}
		seen[key] = struct{}{}

		result, err := e.invoke(ctx, call.Name, json.RawMessage(call.Arguments))
		if err != nil {
			return "", err
		}
		lastOutput = result.Text
		if hop+1 >= e.maxHops {
			return lastOutput, nil
		}
		messages = append(messages,
			domain.ChatMessage{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{call}},
			domain.ChatMessage{Role: domain.RoleTool, ToolCallID: call.ID, Content: lastOutput},
		)
	}
}

func (e *Extractor) route(ctx context.Context, messages []domain.ChatMessage, specs []domain.ToolSpec) (domain.Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, e.llmTimeout)
	defer cancel()

	defer metrics.ObserveStage("route", time.Now())
	req := completionRequest(e.model, messages)
	req.Tools = specs
	out, err := e.llm.Complete(ctx, req)
	if err != nil {
		return domain.Completion{}, llmError("router", err)
	}
	return out, nil
}

func (e *Extractor) invoke(ctx context.Context, name string, args json.RawMessage) (tools.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.toolTimeout)
	defer cancel()

	start := time.Now()
	res, err := e.profile.Tools.Invoke(ctx, name, args)
	outcome := "ok"
	if err != nil {
		uerr := toolError(name, err)
		outcome = strings.ToLower(string(uerr.Code))
		err = uerr
	}
	metrics.ToolInvocations.WithLabelValues(name, outcome).Inc()
	e.logger.Debug("tool invoked", "tool", name, "outcome", outcome, "duration", time.Since(start))
	if err != nil {
		return tools.Result{}, err
	}
	return res, nil
}

// canonicalArgs re-encodes JSON arguments so that key order and whitespace do
// not defeat repeat detection.
func canonicalArgs(raw string) string {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return strings.TrimSpace(raw)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return string(b)
}
