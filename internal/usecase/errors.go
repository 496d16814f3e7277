package usecase

import (
	"context"
	"errors"
	"fmt"

	"concierge-agent/internal/tools"
)

// FallbackMessage is the only failure text shown to end users.
const FallbackMessage = "I was not able to process the request. Please try again."

type ErrorCode string

const (
	ErrorInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrorSchemaValidation  ErrorCode = "SCHEMA_VALIDATION"
	ErrorSubjectNotFound   ErrorCode = "SUBJECT_NOT_FOUND"
	ErrorToolNotFound      ErrorCode = "TOOL_NOT_FOUND"
	ErrorInputValidation   ErrorCode = "INPUT_VALIDATION"
	ErrorMalformedResponse ErrorCode = "MALFORMED_RESPONSE"
	ErrorToolExecution     ErrorCode = "TOOL_EXECUTION"
	ErrorTimeout           ErrorCode = "TIMEOUT"
	ErrorRateLimited       ErrorCode = "RATE_LIMITED"
	ErrorUpstream          ErrorCode = "UPSTREAM_ERROR"
	ErrorInternal          ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the code carried by err, or ErrorInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ErrorInternal
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type timeoutError interface {
	Timeout() bool
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te timeoutError
	return errors.As(err, &te) && te.Timeout()
}

// llmError classifies a language model failure for the given stage.
func llmError(stage string, err error) *Error {
	if isTimeout(err) {
		return newError(ErrorTimeout, stage+"_timeout", err)
	}
	if status, ok := upstreamStatusCode(err); ok && status == 429 {
		return newError(ErrorRateLimited, stage+"_rate_limited", err)
	}
	return newError(ErrorUpstream, stage+"_error", err)
}

// toolError classifies a failure returned by the tool registry.
func toolError(tool string, err error) *Error {
	switch {
	case isTimeout(err):
		return newError(ErrorTimeout, tool+"_timeout", err)
	case errors.Is(err, tools.ErrToolNotFound):
		return newError(ErrorToolNotFound, "unknown_tool_"+tool, err)
	case errors.Is(err, tools.ErrInputValidation):
		return newError(ErrorInputValidation, tool+"_invalid_arguments", err)
	case errors.Is(err, tools.ErrMalformedResponse):
		return newError(ErrorMalformedResponse, tool+"_malformed_response", err)
	default:
		if status, ok := upstreamStatusCode(err); ok && status == 429 {
			return newError(ErrorRateLimited, tool+"_rate_limited", err)
		}
		return newError(ErrorToolExecution, tool+"_failed", err)
	}
}
