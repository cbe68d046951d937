package triage

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientResources is returned by Admit when any resource kind
	// has no availability left. Nothing is reserved in that case.
	ErrInsufficientResources = errors.New("insufficient medical resources")

	// ErrQueueEmpty signals that no patient is waiting.
	ErrQueueEmpty = errors.New("no patient waiting")

	// ErrPersistFailed wraps a sink failure during discharge. The patient has
	// still left the queue and the resources are back in the pool.
	ErrPersistFailed = errors.New("persist discharge record")

	ErrUnknownResource = errors.New("unknown resource kind")
)

// ValidationError reports an attribute outside its accepted range.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
