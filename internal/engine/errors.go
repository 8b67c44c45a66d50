package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error reported by an engine operation.
//
// Only two categories surface as errors:
//   - Invalid argument: a caller passed something unusable; no state changed
//   - Resource exhausted: an allocation bound was hit while delivering data
//
// Unknown topics and calls after Terminate are not errors; those operations
// are no-ops that report success.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// EngineID identifies the affected engine instance, when known.
	EngineID string

	// TopicKey identifies the affected topic, when relevant.
	TopicKey *int32

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInvalidArgument indicates an unusable argument (nil output
	// target, negative count). The operation made no state change.
	ErrCodeInvalidArgument RuntimeErrorCode = "INVALID_ARGUMENT"

	// ErrCodeResourceExhausted indicates an allocation bound was exceeded.
	ErrCodeResourceExhausted RuntimeErrorCode = "RESOURCE_EXHAUSTED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	switch {
	case e.EngineID != "" && e.TopicKey != nil:
		return fmt.Sprintf("%s: %s (engine=%s, topic=%d)", e.Code, e.Message, e.EngineID, *e.TopicKey)
	case e.EngineID != "":
		return fmt.Sprintf("%s: %s (engine=%s)", e.Code, e.Message, e.EngineID)
	case e.TopicKey != nil:
		return fmt.Sprintf("%s: %s (topic=%d)", e.Code, e.Message, *e.TopicKey)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvalidArgument returns true if the error is an invalid argument error.
// Uses errors.As to handle wrapped errors.
func IsInvalidArgument(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidArgument
	}
	return false
}

// IsResourceExhausted returns true if the error is a resource exhaustion error.
// Uses errors.As to handle wrapped errors.
func IsResourceExhausted(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeResourceExhausted
	}
	return false
}

// NewInvalidArgumentError creates a RuntimeError for an unusable argument.
func NewInvalidArgumentError(message string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidArgument,
		Message: message,
	}
}

// NewResourceExhaustedError creates a RuntimeError for an exceeded bound.
func NewResourceExhaustedError(what string, requested, limit int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeResourceExhausted,
		Message: fmt.Sprintf("%s exceeds limit (%d > %d)", what, requested, limit),
		Details: map[string]string{
			"requested": fmt.Sprintf("%d", requested),
			"limit":     fmt.Sprintf("%d", limit),
		},
	}
}
