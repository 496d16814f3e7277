package domain

import "fmt"

// Intent is the structured extraction of what the user is asking about.
// Created once per turn and never mutated.
type Intent struct {
	Subject string `json:"subject"`
	Topic   string `json:"topic"`
}

// Summary is the text recorded in conversation memory for this intent.
func (i Intent) Summary() string {
	return fmt.Sprintf("User wants to know about %s related to %s.", i.Topic, i.Subject)
}

// Subject is the Subject Resolution Record returned by a lookup tool.
type Subject struct {
	ID            string `json:"id"`
	CanonicalName string `json:"canonical_name"`
}

// Topic is one allowed value of the intent topic enum.
type Topic struct {
	Name        string
	Description string
}

// IntentSchema describes the function the tagger model must call.
type IntentSchema struct {
	FunctionName       string
	Description        string
	SubjectDescription string
	Topics             []Topic
	// DefaultTopic replaces an empty topic when the model could not decide.
	DefaultTopic string
}

// TopicNames returns the topic enum values in declaration order.
func (s IntentSchema) TopicNames() []string {
	names := make([]string, 0, len(s.Topics))
	for _, t := range s.Topics {
		names = append(names, t.Name)
	}
	return names
}

// HasTopic reports whether name is a member of the topic enum.
func (s IntentSchema) HasTopic(name string) bool {
	for _, t := range s.Topics {
		if t.Name == name {
			return true
		}
	}
	return false
}

// Parameters renders the schema as a JSON Schema object for function calling.
// Topic accepts the empty string so an undecided model can say so explicitly.
func (s IntentSchema) Parameters() map[string]any {
	topicDesc := "The topic the user wants to know about. One of:"
	for _, t := range s.Topics {
		topicDesc += fmt.Sprintf("\n- %q: %s", t.Name, t.Description)
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"subject": map[string]any{
				"type":        "string",
				"description": s.SubjectDescription,
			},
			"topic": map[string]any{
				"type":        "string",
				"description": topicDesc,
				"enum":        append(s.TopicNames(), ""),
			},
		},
		"required": []any{"subject", "topic"},
	}
}
