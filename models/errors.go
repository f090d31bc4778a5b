package models

import (
	"errors"
	"fmt"
)

// Error codes used across the pipeline, the surface adapters and the sinks.
const (
	ErrCodeNavigationTimeout = "NAVIGATION_TIMEOUT"
	ErrCodeElementMissing    = "ELEMENT_MISSING"
	ErrCodeSurface           = "SURFACE_ERROR"
	ErrCodeInterrupted       = "EXTERNAL_INTERRUPT"
	ErrCodeBrowserCrash      = "BROWSER_CRASH"
	ErrCodeSinkFailed        = "SINK_FAILED"
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
)

// ErrorDetail is the structured error exposed by the status API and webhooks.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an operator-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// IsCode reports whether any ScrapeError in err's chain carries code.
func IsCode(err error, code string) bool {
	var se *ScrapeError
	for err != nil {
		if !errors.As(err, &se) {
			return false
		}
		if se.Code == code {
			return true
		}
		err = se.Err
	}
	return false
}

// Detail converts any error to an ErrorDetail, defaulting to SURFACE_ERROR
// for errors that never passed through NewScrapeError.
func Detail(err error) *ErrorDetail {
	if err == nil {
		return nil
	}
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.ToDetail()
	}
	return &ErrorDetail{Code: ErrCodeSurface, Message: err.Error()}
}
