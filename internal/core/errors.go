package core

import "errors"

// LLM failure classes. Callers match with errors.Is; the wrapped message is
// already safe to show to end users.
var (
	ErrRateLimited     = errors.New("llm rate limited")
	ErrUpstreamTimeout = errors.New("llm request timed out")
	ErrUpstreamError   = errors.New("llm request failed")
)

// ErrBudgetExceeded is returned when a question alone is larger than the
// prompt context budget.
var ErrBudgetExceeded = errors.New("question exceeds context budget")
