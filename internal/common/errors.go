// Package common defines the sentinel errors shared by every kopfkino layer
// and the typed errors of the draft/remote core. Callers should match them
// with errors.Is / errors.As.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Draft-level errors.
	ErrValidation   = errors.New("validation error")
	ErrUnknownField = errors.New("unknown field")
	ErrClosed       = errors.New("session closed")

	// Remote-level errors.
	ErrCommit       = errors.New("commit failed")
	ErrSubscription = errors.New("subscription failed")

	// Destructive actions refused at the confirmation gate.
	ErrNotConfirmed = errors.New("action not confirmed")
)

// ValidationError reports a required field that is missing or blank. It
// blocks the commit and is never retried automatically.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("validation error: %s is required", e.Field)
	}
	return fmt.Sprintf("validation error: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// CommitError wraps a failed backend write.
type CommitError struct {
	Op         string
	Collection string
	ID         string
	Err        error
}

func (e *CommitError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Collection, e.ID, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

func (e *CommitError) Is(target error) bool { return target == ErrCommit }

// SubscriptionError wraps a failed push stream.
type SubscriptionError struct {
	Collection string
	Err        error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription %s: %v", e.Collection, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

func (e *SubscriptionError) Is(target error) bool { return target == ErrSubscription }
