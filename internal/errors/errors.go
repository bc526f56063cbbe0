package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context, keeping the code of a wrapped AppError
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   err,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetCode returns the code of the outermost AppError in the chain, otherwise "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// HasCode reports whether any AppError in the chain carries code
func HasCode(err error, code string) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Code == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// Predefined error codes
const (
	CodeConfigInvalid   = "CONFIG_INVALID"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeExternalService = "EXTERNAL_SERVICE_ERROR"
	CodeInvalidInput    = "INVALID_INPUT"

	// Pipeline taxonomy
	CodeUnreadableWorkbook     = "UNREADABLE_WORKBOOK"
	CodeNoRequirementsFound    = "NO_REQUIREMENTS_FOUND"
	CodeClassifierBatchFailure = "CLASSIFIER_BATCH_FAILURE"
	CodePipelineIntegrity      = "PIPELINE_INTEGRITY"
	CodeOperationCancelled     = "OPERATION_CANCELLED"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string, cause error) *AppError {
	return &AppError{Code: CodeDatabaseError, Message: message, Cause: cause}
}

func ValidationError(message string) *AppError {
	return New(CodeValidationError, message)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

func ExternalServiceError(service string, cause error) *AppError {
	return &AppError{
		Code:    CodeExternalService,
		Message: fmt.Sprintf("%s service error", service),
		Cause:   cause,
	}
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

// UnreadableWorkbook is fatal: the input is not a spreadsheet container or is corrupted
func UnreadableWorkbook(fileName string, cause error) *AppError {
	return &AppError{
		Code:    CodeUnreadableWorkbook,
		Message: fmt.Sprintf("unreadable workbook %q", fileName),
		Cause:   cause,
	}
}

// NoRequirementsFound is recorded per sheet; it is fatal only when the whole workbook yields nothing
func NoRequirementsFound(scope string) *AppError {
	return New(CodeNoRequirementsFound, fmt.Sprintf("no requirements detected in %s", scope))
}

// ClassifierBatchFailure describes a batch that exhausted its retries
func ClassifierBatchFailure(batch, attempts int, cause error) *AppError {
	return &AppError{
		Code:    CodeClassifierBatchFailure,
		Message: fmt.Sprintf("batch %d failed after %d attempts", batch, attempts),
		Cause:   cause,
	}
}

// PipelineIntegrity signals a broken stage-alignment invariant
func PipelineIntegrity(format string, args ...interface{}) *AppError {
	return New(CodePipelineIntegrity, "pipeline integrity violated: "+fmt.Sprintf(format, args...))
}

// OperationCancelled wraps the context error of a cancelled run
func OperationCancelled(cause error) *AppError {
	return &AppError{
		Code:    CodeOperationCancelled,
		Message: "operation cancelled",
		Cause:   cause,
	}
}
