package service

import (
	"fmt"
)

// Category is the machine-readable failure class returned to callers.
type Category string

const (
	CategoryValidation         Category = "validation_error"
	CategoryModerationRejected Category = "moderation_rejected"
	CategoryInternal           Category = "internal_error"
	CategoryCanceled           Category = "request_canceled"
)

// Error is the only error Process returns. Message and Detail are safe to
// show to clients; the underlying cause is logged and reachable through
// Unwrap but never rendered by Error.
type Error struct {
	TraceID   string
	Category  Category
	Stage     Stage
	Message   string
	Detail    string
	Retryable bool
	cause     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at %s: %s", e.Category, e.Stage, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}
