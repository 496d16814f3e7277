package tools

import (
	"errors"
	"fmt"
)

var (
	// ErrToolNotFound is returned when a tool name is absent from the registry.
	ErrToolNotFound = errors.New("tools: tool not found")
	// ErrInputValidation is returned when arguments do not match a tool's schema.
	ErrInputValidation = errors.New("tools: input validation failed")
	// ErrMalformedResponse is returned when the content API answered with an
	// unexpected shape.
	ErrMalformedResponse = errors.New("tools: malformed response")
	// ErrToolExecution is returned when a tool's external call failed.
	ErrToolExecution = errors.New("tools: execution failed")
)

// Malformed wraps a response shape problem so it classifies as ErrMalformedResponse.
func Malformed(tool, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformedResponse, tool, fmt.Sprintf(format, args...))
}
