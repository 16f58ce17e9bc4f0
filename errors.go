package critpath

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error codes for specific failure types
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeCycle         = "CYCLE_ERROR"
	ErrCodeExecution     = "EXECUTION_ERROR"
	ErrCodeBodyNotFound  = "BODY_NOT_FOUND"
	ErrCodeLoad          = "LOAD_ERROR"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeCancelled     = "EXECUTION_CANCELLED"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// Sentinels matched with errors.Is against the structured errors below.
var (
	ErrValidation = errors.New("invalid task specification")
	ErrCycle      = errors.New("dependency cycle")
	ErrExecution  = errors.New("task execution failed")
)

// Error is the general coded error used across critpath.
type Error struct {
	Code    string // A machine-readable error code (e.g., ErrCodeLoad)
	Message string // A human-readable message
	Stage   string // The stage where the error occurred (e.g., "load", "execution")
	Cause   error  // The underlying error, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Stage, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Stage, e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error, allowing for error chaining.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error.
func NewError(code, stage, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Stage:   stage,
		Message: message,
		Cause:   cause,
	}
}

func NewLoadError(source string, cause error) *Error {
	return NewError(ErrCodeLoad, "load", fmt.Sprintf("failed to load tasks from %s", source), cause)
}

func NewBodyNotFoundError(stage, kind string, cause error) *Error {
	return NewError(ErrCodeBodyNotFound, stage, fmt.Sprintf("no task body registered for %q", kind), cause)
}

func NewConfigurationError(message string, cause error) *Error {
	return NewError(ErrCodeConfiguration, "initialization", message, cause)
}

func NewCancelledError(stage string, cause error) *Error {
	msg := "execution cancelled"
	if cause != nil && cause.Error() != "" && cause.Error() != "context canceled" {
		msg = fmt.Sprintf("execution cancelled: %v", cause)
	}
	return NewError(ErrCodeCancelled, stage, msg, cause)
}

func NewInternalError(stage, message string, cause error) *Error {
	return NewError(ErrCodeInternal, stage, message, cause)
}

// CodeOf returns the code of the first coded error in the chain.
func CodeOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ErrCodeValidation
	}
	var cy *CycleError
	if errors.As(err, &cy) {
		return ErrCodeCycle
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ErrCodeExecution
	}
	return ""
}

// IssueKind classifies a single validation finding.
type IssueKind string

const (
	IssueEmptyID           IssueKind = "empty_id"
	IssueDuplicateID       IssueKind = "duplicate_id"
	IssueUnknownDependency IssueKind = "unknown_dependency"
	IssueInvalidDuration   IssueKind = "invalid_duration"
	IssueSelfDependency    IssueKind = "self_dependency"
	IssueEmptyResource     IssueKind = "empty_resource"
)

// Issue is one problem found while validating a task specification.
type Issue struct {
	Kind   IssueKind
	TaskID TaskID
	Row    int
	Detail string
}

func (i Issue) String() string {
	var b strings.Builder
	if i.Row > 0 {
		fmt.Fprintf(&b, "row %d: ", i.Row)
	}
	if i.TaskID != "" {
		fmt.Fprintf(&b, "task %q: ", i.TaskID)
	}
	b.WriteString(i.Detail)
	return b.String()
}

// ValidationError aggregates every issue found in one validation pass.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Issues[0])
	}
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.String()
	}
	return fmt.Sprintf("%s: %d problems: %s", ErrValidation, len(e.Issues), strings.Join(parts, "; "))
}

// Unwrap exposes ErrValidation and, for every task that depends on itself, a
// one-member *CycleError.
func (e *ValidationError) Unwrap() []error {
	errs := []error{ErrValidation}
	for _, is := range e.Issues {
		if is.Kind == IssueSelfDependency {
			errs = append(errs, &CycleError{Members: []TaskID{is.TaskID}})
		}
	}
	return errs
}

// Has reports whether any issue of the given kind was recorded.
func (e *ValidationError) Has(kind IssueKind) bool {
	for _, is := range e.Issues {
		if is.Kind == kind {
			return true
		}
	}
	return false
}

// CycleError names the members of a dependency cycle.
//
// Members are listed in traversal order: each member depends on the next one,
// and the last depends on the first.
type CycleError struct {
	Members []TaskID
}

func (e *CycleError) Error() string {
	if len(e.Members) == 0 {
		return ErrCycle.Error()
	}
	parts := make([]string, 0, len(e.Members)+1)
	for _, m := range e.Members {
		parts = append(parts, string(m))
	}
	parts = append(parts, string(e.Members[0]))
	return fmt.Sprintf("%s: %s", ErrCycle, strings.Join(parts, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycle }

// ExecutionError reports every task that failed or was skipped in a run.
type ExecutionError struct {
	Failed  map[TaskID]error
	Skipped []TaskID

	// Cause is set when the run was interrupted, e.g. by context cancellation.
	Cause error
}

func (e *ExecutionError) Error() string {
	failed := e.FailedIDs()
	var b strings.Builder
	b.WriteString(ErrExecution.Error())
	if len(failed) > 0 {
		names := make([]string, len(failed))
		for i, id := range failed {
			names[i] = string(id)
		}
		fmt.Fprintf(&b, ": failed [%s]", strings.Join(names, ", "))
	}
	if len(e.Skipped) > 0 {
		names := make([]string, len(e.Skipped))
		for i, id := range e.Skipped {
			names[i] = string(id)
		}
		fmt.Fprintf(&b, "; skipped [%s]", strings.Join(names, ", "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, "; %v", e.Cause)
	}
	return b.String()
}

func (e *ExecutionError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrExecution, e.Cause}
	}
	return []error{ErrExecution}
}

// FailedIDs returns the failed task identifiers in sorted order.
func (e *ExecutionError) FailedIDs() []TaskID {
	ids := make([]TaskID, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
