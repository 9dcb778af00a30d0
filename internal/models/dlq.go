package models

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrorCategory classifies a DLQ entry's root cause, grounded on
// original_source's ErrorDetail.from_exception classifier.
type ErrorCategory string

const (
	ErrorTransient      ErrorCategory = "TRANSIENT"
	ErrorValidation     ErrorCategory = "VALIDATION"
	ErrorResource       ErrorCategory = "RESOURCE"
	ErrorInfrastructure ErrorCategory = "INFRASTRUCTURE"
	ErrorHandler        ErrorCategory = "HANDLER"
	ErrorUnknown        ErrorCategory = "UNKNOWN"
)

// ErrorDetail is the structured error payload carried by a DLQEntry.
type ErrorDetail struct {
	Category      ErrorCategory `json:"category"`
	ErrorCode     string        `json:"error_code"`
	TracebackHash string        `json:"traceback_hash,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// ClassifyError pattern-matches a handler error's type name and message
// into one of the DLQ error categories. It never fails closed: an error
// that matches nothing is UNKNOWN.
func ClassifyError(errCode string, message string) ErrorCategory {
	lowerCode := strings.ToLower(errCode)
	lowerMsg := strings.ToLower(message)

	if containsAny(lowerCode, lowerMsg, "timeout", "connection", "temporary", "unavailable", "retry") {
		return ErrorTransient
	}
	if containsAny(lowerCode, lowerMsg, "validation", "invalid", "schema", "parsing", "value") {
		return ErrorValidation
	}
	if containsAny(lowerCode, lowerMsg, "ratelimit", "rate_limit", "quota", "throttl") {
		return ErrorResource
	}
	// Infrastructure is classified by error code only, not message, to avoid
	// false positives on handler output that merely mentions "redis".
	if containsAny(lowerCode, "", "redis", "postgres", "database", "sql") {
		return ErrorInfrastructure
	}
	return ErrorUnknown
}

func containsAny(code, msg string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(code, n) || (msg != "" && strings.Contains(msg, n)) {
			return true
		}
	}
	return false
}

// CodedError attaches a stable error code to a failure, the Go analogue of
// the original's reliance on the raising exception's class name
// (type(exc).__name__) to drive DLQ classification.
type CodedError struct {
	Code string
	Err  error
}

func (e *CodedError) Error() string { return e.Err.Error() }
func (e *CodedError) Unwrap() error { return e.Err }

// NewCodedError wraps err with code, or returns nil if err is nil.
func NewCodedError(code string, err error) error {
	if err == nil {
		return nil
	}
	return &CodedError{Code: code, Err: err}
}

// ErrorCodeFor extracts the code carried by err, if any, falling back to
// "UnknownError" for errors no call site tagged with a CodedError.
func ErrorCodeFor(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return "UnknownError"
}

// DLQEntry is an append-only dead-letter record for a task that exhausted
// its retry budget.
type DLQEntry struct {
	ID                string          `json:"id"`
	TaskID            string          `json:"task_id"`
	ExecutionID       string          `json:"execution_id"`
	NodeID            string          `json:"node_id"`
	Handler           string          `json:"handler"`
	Config            json.RawMessage `json:"config,omitempty"`
	ErrorMessage      string          `json:"error_message"`
	RetryCount        int             `json:"retry_count"`
	OriginalTimestamp time.Time       `json:"original_timestamp"`
	FailedAt          time.Time       `json:"failed_at"`
	ErrorDetail       *ErrorDetail    `json:"error_detail,omitempty"`
}
