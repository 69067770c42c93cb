package errors

import (
	"fmt"
	"regexp"
)

// Error codes attached to record-level failures. Loaders and the engine
// agree on these strings; they surface unchanged in run summaries and the
// error journal.
const (
	CodeDuplicate           = "DUPLICATE"
	CodeInvalidFormat       = "INVALID_FORMAT"
	CodeInvalidDateRange    = "INVALID_DATE_RANGE"
	CodeZoneNotFound        = "ZONE_NOT_FOUND"
	CodeTaxCategoryNotFound = "TAX_CATEGORY_NOT_FOUND"
	CodeMissingField        = "MISSING_FIELD"
	CodeUnsupportedOp       = "UNSUPPORTED_OPERATION"
)

var recoverablePattern = regexp.MustCompile(`(?i)timeout|connection|temporarily`)

// IsRecoverable reports whether an error message describes a transient
// I/O condition worth replaying.
func IsRecoverable(message string) bool {
	return recoverablePattern.MatchString(message)
}

// ParseError represents a YAML or JSON parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures pipeline definition or step config validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ExecutionError represents a runtime failure while executing a pipeline step.
type ExecutionError struct {
	StepKey string
	Err     error
}

// NewExecutionError constructs an ExecutionError.
func NewExecutionError(stepKey string, err error) error {
	return &ExecutionError{StepKey: stepKey, Err: err}
}

func (e *ExecutionError) Error() string {
	if e == nil {
		return ""
	}
	if e.StepKey != "" {
		return fmt.Sprintf("execution error on step %s: %v", e.StepKey, e.Err)
	}
	return fmt.Sprintf("execution error: %v", e.Err)
}

// Unwrap exposes the root error.
func (e *ExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// AdapterError indicates issues within adapter registration or dispatch
// (extractors, transforms, loaders).
type AdapterError struct {
	Adapter string
	Message string
	Err     error
}

// NewAdapterError constructs an AdapterError for the given adapter code.
func NewAdapterError(adapter string, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &AdapterError{Adapter: adapter, Message: message, Err: err}
}

func (e *AdapterError) Error() string {
	if e == nil {
		return ""
	}
	if e.Adapter != "" {
		return fmt.Sprintf("adapter error [%s]: %s", e.Adapter, e.Message)
	}
	return fmt.Sprintf("adapter error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *AdapterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// JournalError represents a failure in the rollback journal or the durable
// run-state store. These are pipeline-level infrastructure failures and
// always mark the run FAILED.
type JournalError struct {
	TxID    string
	Message string
	Err     error
}

// NewJournalError constructs a JournalError.
func NewJournalError(txID string, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &JournalError{TxID: txID, Message: message, Err: err}
}

func (e *JournalError) Error() string {
	if e == nil {
		return ""
	}
	if e.TxID != "" {
		return fmt.Sprintf("journal error [%s]: %s", e.TxID, e.Message)
	}
	return fmt.Sprintf("journal error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *JournalError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
