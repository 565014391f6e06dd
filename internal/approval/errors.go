package approval

import (
	"errors"
	"fmt"

	"github.com/roach88/approval/internal/ir"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeConfig indicates invalid or missing registration data.
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"

	// ErrCodeInvalidState indicates an operation on a sandbox in the wrong state.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// ErrCodeCommitFailure indicates the store failed to persist atomically.
	// Nothing was applied.
	ErrCodeCommitFailure ErrorCode = "COMMIT_FAILURE"

	// ErrCodeAuthorResolution indicates a host hook failed or returned bad data.
	// The sandbox stays pending.
	ErrCodeAuthorResolution ErrorCode = "AUTHOR_RESOLUTION"

	// ErrCodeRuleEvaluation indicates a custom rule failed at run time.
	// The sandbox stays pending.
	ErrCodeRuleEvaluation ErrorCode = "RULE_EVALUATION"
)

// Error is the single error type returned by the engine.
//
// None of these errors are retried internally; retry policy belongs to the host.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Ref identifies the live record, when known.
	Ref ir.RecordRef

	// SandboxID identifies the sandbox, when known.
	SandboxID string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Ref != (ir.RecordRef{}) {
		msg += fmt.Sprintf(" (record=%s", e.Ref.Key())
		if e.SandboxID != "" {
			msg += fmt.Sprintf(", sandbox=%s", e.SandboxID)
		}
		msg += ")"
	} else if e.SandboxID != "" {
		msg += fmt.Sprintf(" (sandbox=%s)", e.SandboxID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsConfigError returns true if err is a registration error.
func IsConfigError(err error) bool {
	return hasCode(err, ErrCodeConfig)
}

// IsInvalidStateError returns true if err is an invalid state error.
func IsInvalidStateError(err error) bool {
	return hasCode(err, ErrCodeInvalidState)
}

// IsCommitFailure returns true if err is an atomic commit failure.
func IsCommitFailure(err error) bool {
	return hasCode(err, ErrCodeCommitFailure)
}

// IsAuthorResolutionError returns true if err came from a failing host hook.
func IsAuthorResolutionError(err error) bool {
	return hasCode(err, ErrCodeAuthorResolution)
}

// IsRuleEvaluationError returns true if err came from a custom rule that
// failed while evaluating a submission.
func IsRuleEvaluationError(err error) bool {
	return hasCode(err, ErrCodeRuleEvaluation)
}

// NewConfigError creates a registration error for a record type.
func NewConfigError(recordType, format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeConfig,
		Message: fmt.Sprintf(format, args...),
		Ref:     ir.RecordRef{Type: recordType},
	}
}

func newInvalidStateError(ref ir.RecordRef, sandboxID, format string, args ...any) *Error {
	return &Error{
		Code:      ErrCodeInvalidState,
		Message:   fmt.Sprintf(format, args...),
		Ref:       ref,
		SandboxID: sandboxID,
	}
}

func newCommitFailure(ref ir.RecordRef, sandboxID string, err error) *Error {
	return &Error{
		Code:      ErrCodeCommitFailure,
		Message:   "atomic commit failed",
		Ref:       ref,
		SandboxID: sandboxID,
		Err:       err,
	}
}

func newAuthorResolutionError(ref ir.RecordRef, sandboxID, hook string, err error) *Error {
	return &Error{
		Code:      ErrCodeAuthorResolution,
		Message:   hook + " failed",
		Ref:       ref,
		SandboxID: sandboxID,
		Err:       err,
	}
}

func newRuleEvaluationError(ref ir.RecordRef, sandboxID, rule string, err error) *Error {
	return &Error{
		Code:      ErrCodeRuleEvaluation,
		Message:   "custom rule " + rule + " failed",
		Ref:       ref,
		SandboxID: sandboxID,
		Err:       err,
	}
}
