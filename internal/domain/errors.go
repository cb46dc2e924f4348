package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrAlreadyClaimed = errors.New("transaction already claimed")
	ErrConfiguration  = errors.New("invalid configuration")
	ErrValidation     = errors.New("invalid alert")
	ErrRetrieval      = errors.New("candidate retrieval failed")
)

// ConfigurationError is raised at construction time and is fatal.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// ValidationError means an alert lacks a required field.
type ValidationError struct {
	AlertID string
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.AlertID == "" {
		return fmt.Sprintf("invalid alert: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid alert %s: %s %s", e.AlertID, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RetrievalError wraps a pool or claim-store failure. It is distinct from
// an empty candidate set.
type RetrievalError struct {
	AlertID string
	Err     error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("candidate retrieval failed for alert %s: %v", e.AlertID, e.Err)
}

func (e *RetrievalError) Is(target error) bool {
	return target == ErrRetrieval
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}
