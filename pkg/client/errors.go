package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents a response body that is not valid JSON.
	ErrorClassDecode ErrorClass = "decode"
)

// APIError represents a failed API request with additional context.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	URL        string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	status := ""
	if e.StatusCode != 0 {
		status = fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("API %s error%s: %s %s: %v", e.Class, status, e.Message, e.URL, e.Err)
	}
	return fmt.Sprintf("API %s error%s: %s %s", e.Class, status, e.Message, e.URL)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// IsClass reports whether err is an *APIError of the given class.
func IsClass(err error, class ErrorClass) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Class == class
}

// classifyStatus maps an HTTP status code to an error class.
// Returns "" for success codes.
func classifyStatus(code int) ErrorClass {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case code >= 400 && code < 500:
		return ErrorClassClient
	case code >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}
