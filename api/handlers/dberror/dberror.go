// Package dberror classifies status and history store errors for HTTP responses.
package dberror

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
)

// ErrorType classifies database errors for appropriate handling.
type ErrorType int

const (
	// ErrorTypeUnknown is an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeConnectivity indicates the database is unreachable.
	ErrorTypeConnectivity
	// ErrorTypeTimeout indicates the operation timed out.
	ErrorTypeTimeout
	// ErrorTypeAuth indicates authentication/authorization failure.
	ErrorTypeAuth
	// ErrorTypeQuery indicates a query/syntax error.
	ErrorTypeQuery
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeConnectivity:
		return "connectivity"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeQuery:
		return "query"
	default:
		return "unknown"
	}
}

// IsTransient returns true if the error is likely transient and worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not transient (user cancelled or deadline exceeded)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	switch Classify(err) {
	case ErrorTypeConnectivity, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

var (
	connectivityPatterns = []string{
		"connection refused",
		"connection reset",
		"connection closed",
		"no such host",
		"dial tcp",
		"dial unix",
		"eof",
		"broken pipe",
		"network is unreachable",
		"no route to host",
		"i/o timeout",
		"read/write on closed",
		"server shutdown",
		"pool is closed",
		"too many connections",
	}
	timeoutPatterns = []string{
		"timeout",
		"deadline exceeded",
		"timed out",
	}
	authPatterns = []string{
		"unauthorized",
		"authentication failed",
		"password authentication",
		"access denied",
		"permission denied",
	}
	queryPatterns = []string{
		"syntax error",
		"unknown column",
		"unknown table",
		"does not exist",
	}
)

// Classify determines the type of database error.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout
		}
		return ErrorTypeConnectivity
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case containsAny(errStr, connectivityPatterns):
		return ErrorTypeConnectivity
	case containsAny(errStr, timeoutPatterns):
		return ErrorTypeTimeout
	case containsAny(errStr, authPatterns):
		return ErrorTypeAuth
	case containsAny(errStr, queryPatterns):
		return ErrorTypeQuery
	}
	return ErrorTypeUnknown
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// UserMessage returns a user-friendly error message based on the error type.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	switch Classify(err) {
	case ErrorTypeConnectivity:
		return "Database temporarily unavailable. Please try again in a moment."
	case ErrorTypeTimeout:
		return "Request timed out. Please try again."
	case ErrorTypeAuth:
		return "Database authentication error. Please contact support."
	default:
		return "An unexpected error occurred. Please try again."
	}
}

// HTTPStatus maps a store error to a response status: transient errors are 503, the rest 500.
func HTTPStatus(err error) int {
	if IsTransient(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
