// Package errors provides the error taxonomy used across the reconciliation
// pipeline. Errors carry a category, a code, optional context and a
// suggestion, so stage failures recorded on a workflow state stay actionable.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryExtraction    ErrorCategory = "extraction"
	CategoryMatching      ErrorCategory = "matching"
	CategoryRisk          ErrorCategory = "risk"
	CategoryWorkflow      ErrorCategory = "workflow"
	CategoryStorage       ErrorCategory = "storage"
	CategoryCollaborator  ErrorCategory = "collaborator"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryValidation    ErrorCategory = "validation"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Extraction errors
	CodeInvoiceNotFound      ErrorCode = "invoice_not_found"
	CodeExtractionIncomplete ErrorCode = "extraction_incomplete"

	// Matching errors
	CodeNoCandidates    ErrorCode = "no_candidates"
	CodeCandidateLookup ErrorCode = "candidate_lookup_failed"
	CodeScoringFailed   ErrorCode = "scoring_failed"

	// Risk errors
	CodeDetectorFailed    ErrorCode = "detector_failed"
	CodeHistoryLookup     ErrorCode = "history_lookup_failed"
	CodeProfileLookup     ErrorCode = "profile_lookup_failed"
	CodeAssessmentAborted ErrorCode = "assessment_aborted"

	// Workflow errors
	CodeStageFailed   ErrorCode = "stage_failed"
	CodeDoubleFailure ErrorCode = "double_failure"
	CodeStagePanic    ErrorCode = "stage_panic"

	// Storage errors
	CodeQueryFailed ErrorCode = "query_failed"
	CodeSaveFailed  ErrorCode = "save_failed"
	CodeOpenFailed  ErrorCode = "open_failed"

	// Collaborator errors
	CodeReasonerTimeout     ErrorCode = "reasoner_timeout"
	CodeReasonerUnavailable ErrorCode = "reasoner_unavailable"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Validation errors
	CodeMissingField  ErrorCode = "missing_field"
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeInvalidDate   ErrorCode = "invalid_date"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// PipelineError is the base error type for all application errors
type PipelineError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *PipelineError) GetExitCode() int {
	switch e.Category {
	case CategoryExtraction, CategoryValidation:
		return 2
	case CategoryConfiguration:
		return 3
	case CategoryStorage:
		return 4
	case CategoryMatching, CategoryRisk, CategoryWorkflow, CategoryInternal:
		return 5
	case CategoryCollaborator:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for resolving the error
func (e *PipelineError) WithSuggestion(suggestion string) *PipelineError {
	e.Suggestion = suggestion
	return e
}

// New creates a new PipelineError
func New(category ErrorCategory, code ErrorCode, message string) *PipelineError {
	return &PipelineError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with PipelineError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *PipelineError {
	if err == nil {
		return nil
	}

	return &PipelineError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Specific error constructors

// ExtractionError creates an extraction-related error
func ExtractionError(code ErrorCode, invoiceID string, err error) *PipelineError {
	var message string
	var suggestion string

	switch code {
	case CodeInvoiceNotFound:
		message = fmt.Sprintf("invoice not found: %s", invoiceID)
		suggestion = "verify the invoice id and that extraction has completed"
	case CodeExtractionIncomplete:
		message = fmt.Sprintf("extraction incomplete for invoice %s", invoiceID)
		suggestion = "re-run extraction or route the document to manual data entry"
	default:
		message = fmt.Sprintf("extraction error for invoice %s", invoiceID)
		suggestion = "check the extraction service output"
	}

	return build(err, CategoryExtraction, code, message).
		WithSuggestion(suggestion).
		WithContext("invoice_id", invoiceID)
}

// MatchingError creates a matching-related error
func MatchingError(code ErrorCode, operation string, err error) *PipelineError {
	var message string
	var suggestion string

	switch code {
	case CodeNoCandidates:
		message = fmt.Sprintf("no candidate purchase orders found during %s", operation)
		suggestion = "check vendor naming and PO amount filters"
	case CodeCandidateLookup:
		message = fmt.Sprintf("candidate lookup failed during %s", operation)
		suggestion = "check procurement data store availability"
	case CodeScoringFailed:
		message = fmt.Sprintf("scoring failed during %s", operation)
		suggestion = "check the invoice and PO data for malformed values"
	default:
		message = fmt.Sprintf("matching error during %s", operation)
		suggestion = "review the invoice and candidate data"
	}

	return build(err, CategoryMatching, code, message).
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// RiskError creates a risk-assessment-related error
func RiskError(code ErrorCode, detector string, err error) *PipelineError {
	var message string
	var suggestion string

	switch code {
	case CodeDetectorFailed:
		message = fmt.Sprintf("risk detector %s failed", detector)
		suggestion = "the assessment continues with degraded coverage; check detector logs"
	case CodeHistoryLookup:
		message = fmt.Sprintf("historical invoice lookup failed for %s", detector)
		suggestion = "check the invoice history store"
	case CodeProfileLookup:
		message = fmt.Sprintf("vendor risk profile lookup failed for %s", detector)
		suggestion = "check the vendor profile store"
	case CodeAssessmentAborted:
		message = fmt.Sprintf("risk assessment aborted in %s", detector)
		suggestion = "retry the assessment"
	default:
		message = fmt.Sprintf("risk error in %s", detector)
		suggestion = "review detector inputs"
	}

	return build(err, CategoryRisk, code, message).
		WithSuggestion(suggestion).
		WithContext("detector", detector)
}

// WorkflowError creates a workflow-related error
func WorkflowError(code ErrorCode, stage string, err error) *PipelineError {
	var message string
	var suggestion string

	switch code {
	case CodeStageFailed:
		message = fmt.Sprintf("workflow stage %s failed", stage)
		suggestion = "inspect the stage error log on the workflow state"
	case CodeDoubleFailure:
		message = "both matching and risk assessment failed"
		suggestion = "inspect upstream data stores and retry the invoice"
	case CodeStagePanic:
		message = fmt.Sprintf("workflow stage %s panicked", stage)
		suggestion = "this is likely a bug - report it with the error details"
	default:
		message = fmt.Sprintf("workflow error in stage %s", stage)
		suggestion = "inspect the workflow state"
	}

	return build(err, CategoryWorkflow, code, message).
		WithSuggestion(suggestion).
		WithContext("stage", stage)
}

// StorageError creates a storage-related error
func StorageError(code ErrorCode, operation string, err error) *PipelineError {
	var message string
	var suggestion string

	switch code {
	case CodeQueryFailed:
		message = fmt.Sprintf("storage query failed: %s", operation)
		suggestion = "check database availability and schema"
	case CodeSaveFailed:
		message = fmt.Sprintf("storage save failed: %s", operation)
		suggestion = "persistence is best-effort; the decision is unaffected"
	case CodeOpenFailed:
		message = fmt.Sprintf("failed to open storage: %s", operation)
		suggestion = "check the database path and permissions"
	default:
		message = fmt.Sprintf("storage error: %s", operation)
		suggestion = "check the data store"
	}

	return build(err, CategoryStorage, code, message).
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// CollaboratorError creates an error for the external reasoning collaborator
func CollaboratorError(code ErrorCode, err error) *PipelineError {
	var message string
	var suggestion string

	switch code {
	case CodeReasonerTimeout:
		message = "reasoning collaborator timed out"
		suggestion = "the algorithmic match type is kept; no action required"
	case CodeReasonerUnavailable:
		message = "reasoning collaborator unavailable"
		suggestion = "the algorithmic match type is kept; no action required"
	default:
		message = "reasoning collaborator error"
		suggestion = "the algorithmic match type is kept; no action required"
	}

	return build(err, CategoryCollaborator, code, message).WithSuggestion(suggestion)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *PipelineError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this setting via flag, env or config file"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	return build(err, CategoryConfiguration, code, message).
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *PipelineError {
	var message string
	var suggestion string

	switch code {
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in field '%s': %v", field, value)
		suggestion = "ensure amounts are valid decimal numbers (e.g. '12.34')"
	case CodeInvalidDate:
		message = fmt.Sprintf("invalid date in field '%s': %v", field, value)
		suggestion = "use date format YYYY-MM-DD or RFC3339"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	return build(err, CategoryValidation, code, message).
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// InternalError creates an internal error
func InternalError(operation string, err error) *PipelineError {
	return build(err, CategoryInternal, CodeUnexpectedError,
		fmt.Sprintf("unexpected error during %s", operation)).
		WithSuggestion("this is likely a bug - report it with the error details").
		WithContext("operation", operation)
}

func build(err error, category ErrorCategory, code ErrorCode, message string) *PipelineError {
	if err != nil {
		return Wrap(err, category, code, message)
	}
	return New(category, code, message)
}

// Utility functions

// IsPipelineError checks if an error is a PipelineError
func IsPipelineError(err error) bool {
	_, ok := err.(*PipelineError)
	return ok
}

// AsPipelineError extracts a PipelineError from an error chain
func AsPipelineError(err error) (*PipelineError, bool) {
	var pipelineErr *PipelineError
	if errors.As(err, &pipelineErr) {
		return pipelineErr, true
	}
	return nil, false
}

// WrapIfNeeded wraps an error if it's not already a PipelineError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *PipelineError {
	if err == nil {
		return nil
	}

	if pipelineErr, ok := AsPipelineError(err); ok {
		return pipelineErr
	}

	return Wrap(err, category, code, message)
}
