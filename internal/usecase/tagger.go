package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"concierge-agent/internal/domain"
	"concierge-agent/internal/tools"
)

// Tagger turns free text plus conversation history into a validated Intent.
type Tagger struct {
	llm       LLMClient
	model     string
	profile   Profile
	validator *tools.Schema
	timeout   time.Duration
}

func NewTagger(llm LLMClient, model string, profile Profile, timeout time.Duration) (*Tagger, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("usecase: tagger model must not be empty")
	}
	validator, err := tools.CompileSchema(profile.Schema.Parameters())
	if err != nil {
		return nil, fmt.Errorf("usecase: compile intent schema: %w", err)
	}
	return &Tagger{
		llm:       llm,
		model:     model,
		profile:   profile,
		validator: validator,
		timeout:   orDefault(timeout, defaultLLMTimeout),
	}, nil
}

// ExtractIntent asks the model for the intent function call and validates the
// arguments against the intent schema. There is no local retry.
func (t *Tagger) ExtractIntent(ctx context.Context, userText string, history []domain.MemoryEntry) (domain.Intent, error) {
	schema := t.profile.Schema
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	out, err := t.llm.Complete(ctx, domain.CompletionRequest{
		Model:       t.model,
		Temperature: 0,
		Messages:    buildTaggerMessages(t.profile, userText, history),
		Tools: []domain.ToolSpec{{
			Name:        schema.FunctionName,
			Description: schema.Description,
			Parameters:  schema.Parameters(),
		}},
		ForceTool: schema.FunctionName,
	})
	if err != nil {
		return domain.Intent{}, llmError("tagger", err)
	}

	var args string
	found := false
	for _, call := range out.ToolCalls {
		if call.Name == schema.FunctionName {
			args, found = call.Arguments, true
			break
		}
	}
	if !found {
		return domain.Intent{}, newError(ErrorSchemaValidation, "intent_function_not_called", nil)
	}
	return parseIntent(t.validator, schema, args)
}

func parseIntent(validator *tools.Schema, schema domain.IntentSchema, args string) (domain.Intent, error) {
	if err := validator.Validate([]byte(args)); err != nil {
		return domain.Intent{}, newError(ErrorSchemaValidation, "intent_shape_mismatch", err)
	}
	var intent domain.Intent
	if err := json.Unmarshal([]byte(args), &intent); err != nil {
		return domain.Intent{}, newError(ErrorSchemaValidation, "intent_decode_error", err)
	}
	intent.Subject = strings.TrimSpace(intent.Subject)
	intent.Topic = strings.TrimSpace(intent.Topic)
	if intent.Subject == "" {
		return domain.Intent{}, newError(ErrorSchemaValidation, "intent_missing_subject", nil)
	}
	if intent.Topic == "" {
		if schema.DefaultTopic == "" {
			return domain.Intent{}, newError(ErrorSchemaValidation, "intent_missing_topic", nil)
		}
		intent.Topic = schema.DefaultTopic
	}
	return intent, nil
}
