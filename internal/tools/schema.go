package tools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// JSONSchema is a JSON Schema document expressed as Go values.
type JSONSchema map[string]any

// Schema is a compiled JSON Schema used to validate raw JSON documents.
type Schema struct {
	compiled *gojsonschema.Schema
}

// CompileSchema compiles a JSON Schema. The root must be an object schema.
func CompileSchema(s JSONSchema) (*Schema, error) {
	if s == nil {
		return nil, errors.New("tools: schema must not be nil")
	}
	if t, _ := s["type"].(string); t != "object" {
		return nil, fmt.Errorf("tools: schema type must be \"object\", got %v", s["type"])
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(map[string]any(s)))
	if err != nil {
		return nil, fmt.Errorf("tools: compile schema: %w", err)
	}
	return &Schema{compiled: compiled}, nil
}

// Validate checks raw against the schema. The returned error lists every
// violation and wraps ErrInputValidation.
func (s *Schema) Validate(raw []byte) error {
	if len(strings.TrimSpace(string(raw))) == 0 {
		raw = []byte("{}")
	}
	result, err := s.compiled.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInputValidation, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrInputValidation, strings.Join(msgs, "; "))
}
