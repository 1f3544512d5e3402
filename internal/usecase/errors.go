package usecase

import (
	"errors"
	"fmt"

	"insurance-bot/internal/domain"
)

type ErrorCode string

const (
	ErrorUpload     ErrorCode = "UPLOAD_FAILURE"
	ErrorTimeout    ErrorCode = "TIMEOUT_FAILURE"
	ErrorProcessing ErrorCode = "PROCESSING_FAILURE"
	ErrorParse      ErrorCode = "PARSE_FAILURE"
	ErrorValidation ErrorCode = "VALIDATION_FAILURE"
	ErrorTransport  ErrorCode = "TRANSPORT_FAILURE"
	ErrorInternal   ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// classifyExtractionError maps an extractor failure onto the error
// taxonomy. Anything not recognised as an extraction outcome is a
// transport failure.
func classifyExtractionError(err error) *Error {
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}
	switch {
	case errors.Is(err, domain.ErrUploadRejected):
		return newError(ErrorUpload, "upload_rejected", err)
	case errors.Is(err, domain.ErrExtractionTimeout):
		return newError(ErrorTimeout, "poll_exhausted", err)
	case errors.Is(err, domain.ErrExtractionFailed):
		return newError(ErrorProcessing, "processing_failed", err)
	case errors.Is(err, domain.ErrUnexpectedPayload):
		return newError(ErrorParse, "unexpected_payload", err)
	default:
		return newError(ErrorTransport, "unexpected_error", err)
	}
}

// fallsBackToManual reports whether the failure routes to manual entry
// rather than back to the same photo stage.
func (e *Error) fallsBackToManual() bool {
	switch e.Code {
	case ErrorUpload, ErrorTimeout, ErrorProcessing, ErrorParse:
		return true
	}
	return false
}
