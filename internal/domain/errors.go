package domain

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure for the tool facade and the audit trail.
type Kind string

const (
	KindConfig      Kind = "CONFIG"
	KindTransport   Kind = "TRANSPORT"
	KindApplication Kind = "APPLICATION"
	KindPolicy      Kind = "POLICY"
	KindCancelled   Kind = "CANCELLED"
	KindInternal    Kind = "INTERNAL"
)

// Common domain errors
var (
	ErrChunkNotFound       = errors.New("chunk not found")
	ErrDimensionMismatch   = errors.New("embedding dimension mismatch")
	ErrMessageNotFound     = errors.New("conversation message not found")
	ErrEventNotFound       = errors.New("event not found")
	ErrInvalidTransition   = errors.New("invalid event status transition")
	ErrToolNotFound        = errors.New("tool not found")
	ErrToolAlreadyExists   = errors.New("tool already registered")
	ErrInvalidToolArgs     = errors.New("invalid tool arguments")
	ErrServerNotFound      = errors.New("mcp server not found")
	ErrServerUnhealthy     = errors.New("mcp server in cooldown after failed initialization")
	ErrPolicyRefused       = errors.New("request refused by policy")
	ErrMaxIterations       = errors.New("iteration limit reached")
	ErrSignatureMismatch   = errors.New("webhook signature mismatch")
	ErrSessionBusy         = errors.New("voice session busy")
	ErrEmptyContent        = errors.New("content cannot be empty")
	ErrLLMUnavailable      = errors.New("LLM service unavailable")
	ErrTranscriptionFailed = errors.New("transcription failed")
)

// KindedError attaches a Kind to an underlying error.
type KindedError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *KindedError) Error() string {
	if e.Message != "" && e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *KindedError) Unwrap() error {
	return e.Err
}

// NewError wraps err with an explicit kind.
func NewError(kind Kind, message string, err error) *KindedError {
	return &KindedError{Kind: kind, Message: message, Err: err}
}

// Errorf builds a kinded error from a format string.
func Errorf(kind Kind, format string, args ...any) *KindedError {
	return &KindedError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Classify maps an arbitrary error to its Kind. Errors that carry an
// explicit Kind win; context cancellation and deadlines map to CANCELLED;
// everything else is TRANSPORT by default because unclassified failures
// come almost exclusively from outbound calls.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var ke *KindedError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	switch {
	case errors.Is(err, ErrPolicyRefused):
		return KindPolicy
	case errors.Is(err, ErrInvalidToolArgs), errors.Is(err, ErrInvalidTransition):
		return KindApplication
	case errors.Is(err, ErrToolNotFound), errors.Is(err, ErrToolAlreadyExists):
		return KindConfig
	}
	return KindTransport
}
