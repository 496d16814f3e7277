package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"concierge-agent/internal/domain"
)

// Result is a tool's output. Text is what the model and summarizer see; Data
// optionally carries a structured value for in-process callers.
type Result struct {
	Text string
	Data any
}

// InvokeFunc runs a tool with arguments that already passed schema validation.
type InvokeFunc func(ctx context.Context, args json.RawMessage) (Result, error)

// Descriptor is a named, schema-typed capability selectable by the model.
type Descriptor struct {
	Name        string
	Description string
	InputSchema JSONSchema
	Invoke      InvokeFunc
}

type entry struct {
	desc   Descriptor
	schema *Schema
}

// Registry is an immutable name → descriptor table built once at startup.
// It is safe for concurrent use because nothing mutates it after NewRegistry.
type Registry struct {
	entries map[string]entry
	order   []string
}

// NewRegistry validates and indexes the descriptors. Names must be unique.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	if len(descs) == 0 {
		return nil, errors.New("tools: registry needs at least one tool")
	}
	r := &Registry{entries: make(map[string]entry, len(descs))}
	for _, d := range descs {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return nil, errors.New("tools: tool name must not be empty")
		}
		if d.Invoke == nil {
			return nil, fmt.Errorf("tools: tool %q has no implementation", name)
		}
		if _, dup := r.entries[name]; dup {
			return nil, fmt.Errorf("tools: duplicate tool %q", name)
		}
		schema, err := CompileSchema(d.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tools: tool %q: %w", name, err)
		}
		d.Name = name
		r.entries[name] = entry{desc: d, schema: schema}
		r.order = append(r.order, name)
	}
	return r, nil
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	e, ok := r.entries[name]
	return e.desc, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Specs returns the function-call options presented to the model, in
// registration order.
func (r *Registry) Specs() []domain.ToolSpec {
	specs := make([]domain.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		d := r.entries[name].desc
		specs = append(specs, domain.ToolSpec{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  map[string]any(d.InputSchema),
		})
	}
	return specs
}

// Invoke resolves name, validates args against the tool's schema and runs it.
// An unknown name fails closed with ErrToolNotFound before anything executes.
// Implementation errors that are not already classified wrap ErrToolExecution.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	e, ok := r.entries[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}
	if err := e.schema.Validate(args); err != nil {
		return Result{}, fmt.Errorf("tools: %s: %w", name, err)
	}
	res, err := e.desc.Invoke(ctx, args)
	if err != nil {
		if errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrToolExecution) || errors.Is(err, ErrInputValidation) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %s: %w", ErrToolExecution, name, err)
	}
	return res, nil
}
