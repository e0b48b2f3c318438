package domain

import (
	"errors"
	"time"
)

// ErrorCategory classifies a failed inference request. The set is closed:
// retry policy and user messaging switch exhaustively over these values.
type ErrorCategory int

const (
	CategoryUnknown ErrorCategory = iota
	CategoryTimeout
	CategoryNetwork
	CategoryCors
	CategoryAuth
	CategoryModel
	CategoryServer
	CategoryConnection
)

// String returns the category name.
func (c ErrorCategory) String() string {
	switch c {
	case CategoryTimeout:
		return "timeout"
	case CategoryNetwork:
		return "network"
	case CategoryCors:
		return "cors"
	case CategoryAuth:
		return "auth"
	case CategoryModel:
		return "model"
	case CategoryServer:
		return "server"
	case CategoryConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// Retryable reports whether requests failing with this category may be
// retried locally. Model, Cors and Auth failures cannot be fixed by
// retrying over the same path.
func (c ErrorCategory) Retryable() bool {
	switch c {
	case CategoryModel, CategoryCors, CategoryAuth:
		return false
	default:
		return true
	}
}

// BaseDelay returns the initial backoff delay for the category. Server
// errors wait longer than generic network errors so an overloaded or
// cold-starting service is not hammered.
func (c ErrorCategory) BaseDelay() time.Duration {
	switch c {
	case CategoryServer:
		return 3 * time.Second
	case CategoryTimeout:
		return 2 * time.Second
	case CategoryConnection:
		return 1500 * time.Millisecond
	default:
		return 1 * time.Second
	}
}

// ConnectionClass reports whether the category indicates the inference
// service is unreachable rather than rejecting the request. Only these
// failures are eligible for the canned-response fallback.
func (c ErrorCategory) ConnectionClass() bool {
	switch c {
	case CategoryTimeout, CategoryNetwork, CategoryConnection, CategoryCors:
		return true
	default:
		return false
	}
}

// ClassifiedError is a raw failure mapped onto the taxonomy. Message is
// human-readable and safe to surface to the UI collaborator.
type ClassifiedError struct {
	Category ErrorCategory
	Message  string
	Cause    error
}

func (e *ClassifiedError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// CategoryOf extracts the category from an error chain, or
// CategoryUnknown when no ClassifiedError is present.
func CategoryOf(err error) ErrorCategory {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return CategoryUnknown
}
