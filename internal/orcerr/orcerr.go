// Package orcerr implements the error-kind taxonomy from spec §7 as
// wrapped sentinel errors, in the same fmt.Errorf("...: %w", err) style
// used throughout the teacher's internal/memory and internal/tasks
// packages, so errors.Is/errors.As work across every layer.
package orcerr

import (
	"errors"
	"fmt"
)

// Kind is one entry in the §7 error taxonomy.
type Kind string

const (
	KindValidation           Kind = "validation"
	KindNotFound             Kind = "not_found"
	KindConcurrentExecution  Kind = "concurrent_execution"
	KindInvalidTransition    Kind = "invalid_transition"
	KindNoWorkflowForStrategy Kind = "no_workflow_for_strategy"
	KindAgentUnavailable     Kind = "agent_unavailable"
	KindConsensusStrategyFailed Kind = "consensus_strategy_failed"
	KindIOTransient          Kind = "io_transient"
	KindIOFatal              Kind = "io_fatal"
	KindIndexingPerFile      Kind = "indexing_per_file"
	KindCancelled            Kind = "cancelled"
)

// Error carries a Kind plus the identifiers involved, so a presented
// API can surface kind + message + domain identifiers per §7.
type Error struct {
	Kind    Kind
	Message string
	TaskID  string
	AgentID string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind wrapping a lower-level error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, err: err}
}

// WithTask attaches a TaskID to the error for the presented-failure shape.
func (e *Error) WithTask(taskID string) *Error {
	e.TaskID = taskID
	return e
}

// WithAgent attaches an AgentID to the error for the presented-failure shape.
func (e *Error) WithAgent(agentID string) *Error {
	e.AgentID = agentID
	return e
}

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Retryable reports whether the error's kind is one that a caller
// should retry: agent_unavailable with bounded backoff, io_transient
// within the current transaction.
func Retryable(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	return kind == KindAgentUnavailable || kind == KindIOTransient
}
