package usecase

import (
	"errors"
	"fmt"
	"strings"

	"concierge-agent/internal/domain"
	"concierge-agent/internal/tools"
)

// Prompts holds the domain-specific instructions for each pipeline stage.
type Prompts struct {
	// Tagger is the tagging system instruction; topic descriptions are appended.
	Tagger string
	// TaggerInstruction prefixes the user's text in the tagging request.
	TaggerInstruction string
	// Router is the system instruction for the tool-routing model.
	Router string
	// Grounding is the grounding query template. {id}, {name} and {topic}
	// are replaced with the resolved subject and the requested topic.
	Grounding string
	// Summarizer is the answer synthesis system instruction.
	Summarizer string
}

// Profile is one domain instantiation of the pipeline: an intent schema, a
// tool registry with a designated lookup tool, and prompts.
type Profile struct {
	Name       string
	Schema     domain.IntentSchema
	Tools      *tools.Registry
	LookupTool string
	Prompts    Prompts
}

// Validate checks that the profile can drive the pipeline.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("usecase: profile name must not be empty")
	}
	if p.Schema.FunctionName == "" {
		return errors.New("usecase: intent schema needs a function name")
	}
	if len(p.Schema.Topics) == 0 {
		return errors.New("usecase: intent schema needs at least one topic")
	}
	if p.Schema.DefaultTopic != "" && !p.Schema.HasTopic(p.Schema.DefaultTopic) {
		return fmt.Errorf("usecase: default topic %q is not in the topic enum", p.Schema.DefaultTopic)
	}
	if p.Tools == nil {
		return errors.New("usecase: profile tools must not be nil")
	}
	if _, ok := p.Tools.Lookup(p.LookupTool); !ok {
		return fmt.Errorf("usecase: lookup tool %q is not registered", p.LookupTool)
	}
	if !strings.Contains(p.Prompts.Grounding, "{id}") || !strings.Contains(p.Prompts.Grounding, "{topic}") {
		return errors.New("usecase: grounding template must reference {id} and {topic}")
	}
	return nil
}

// GroundingQuery renders the query that drives tool selection.
func (p Profile) GroundingQuery(subject domain.Subject, topic string) string {
	return strings.NewReplacer(
		"{id}", subject.ID,
		"{name}", subject.CanonicalName,
		"{topic}", topic,
	).Replace(p.Prompts.Grounding)
}
