package logging

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorCategory represents different categories of errors for classification
type ErrorCategory string

const (
	// Controller authentication errors
	ErrorCategoryAuth ErrorCategory = "auth"
	// Controller API transport or status errors
	ErrorCategoryAPI ErrorCategory = "api"
	// Malformed or missing controller payloads
	ErrorCategoryPayload ErrorCategory = "payload"
	// Database/Storage errors
	ErrorCategoryStorage ErrorCategory = "storage"
	// Cache backend errors
	ErrorCategoryCache ErrorCategory = "cache"
	// Configuration errors
	ErrorCategoryConfig ErrorCategory = "config"
	// Unknown/Uncategorized errors
	ErrorCategoryUnknown ErrorCategory = "unknown"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	ErrorSeverityCritical ErrorSeverity = "critical"
	ErrorSeverityHigh     ErrorSeverity = "high"
	ErrorSeverityMedium   ErrorSeverity = "medium"
	ErrorSeverityLow      ErrorSeverity = "low"
	ErrorSeverityInfo     ErrorSeverity = "info"
)

// ErrorContext provides additional context for error logging
type ErrorContext struct {
	Category    ErrorCategory          `json:"category"`
	Severity    ErrorSeverity          `json:"severity"`
	Component   string                 `json:"component"`
	Operation   string                 `json:"operation"`
	Tenant      string                 `json:"tenant,omitempty"`
	SiteID      string                 `json:"site_id,omitempty"`
	Recoverable bool                   `json:"recoverable"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// StructuredError represents a structured error with context
type StructuredError struct {
	Err       error        `json:"error"`
	Context   ErrorContext `json:"context"`
	Timestamp time.Time    `json:"timestamp"`
	Stack     string       `json:"stack,omitempty"`
}

// Error implements the error interface
func (se *StructuredError) Error() string {
	if se.Err != nil {
		return se.Err.Error()
	}
	return "unknown error"
}

// Unwrap returns the underlying error
func (se *StructuredError) Unwrap() error {
	return se.Err
}

// NewStructuredError creates a new structured error with context
func NewStructuredError(err error, context ErrorContext) *StructuredError {
	structuredErr := &StructuredError{
		Err:       err,
		Context:   context,
		Timestamp: time.Now(),
	}

	// Stack traces only for errors someone will actually chase
	if context.Severity == ErrorSeverityCritical || context.Severity == ErrorSeverityHigh {
		structuredErr.Stack = captureStackTrace()
	}

	return structuredErr
}

// LogStructuredError logs a structured error with appropriate level and context
func LogStructuredError(logger logrus.FieldLogger, structuredErr *StructuredError) {
	if logger == nil || structuredErr == nil {
		return
	}

	entry := logger.WithFields(logrus.Fields{
		"error_category": structuredErr.Context.Category,
		"error_severity": structuredErr.Context.Severity,
		"component":      structuredErr.Context.Component,
		"operation":      structuredErr.Context.Operation,
		"recoverable":    structuredErr.Context.Recoverable,
	})

	if structuredErr.Context.Tenant != "" {
		entry = entry.WithField("tenant", structuredErr.Context.Tenant)
	}
	if structuredErr.Context.SiteID != "" {
		entry = entry.WithField("site_id", structuredErr.Context.SiteID)
	}
	for key, value := range structuredErr.Context.Metadata {
		entry = entry.WithField(fmt.Sprintf("meta_%s", key), value)
	}
	if structuredErr.Stack != "" {
		entry = entry.WithField("stack_trace", structuredErr.Stack)
	}

	switch structuredErr.Context.Severity {
	case ErrorSeverityCritical, ErrorSeverityHigh:
		entry.Error(structuredErr.Error())
	case ErrorSeverityMedium, ErrorSeverityLow:
		entry.Warn(structuredErr.Error())
	case ErrorSeverityInfo:
		entry.Info(structuredErr.Error())
	default:
		entry.Error(structuredErr.Error())
	}
}

// LogAuthError logs a failed controller login. These never abort construction,
// so they are medium severity.
func LogAuthError(logger logrus.FieldLogger, err error, tenant string) {
	LogStructuredError(logger, NewStructuredError(err, ErrorContext{
		Category:    ErrorCategoryAuth,
		Severity:    ErrorSeverityMedium,
		Component:   "dnac",
		Operation:   "authenticate",
		Tenant:      tenant,
		Recoverable: true,
	}))
}

// LogPayloadError logs a malformed or missing controller payload for one site
func LogPayloadError(logger logrus.FieldLogger, err error, tenant, siteID string) {
	LogStructuredError(logger, NewStructuredError(err, ErrorContext{
		Category:    ErrorCategoryPayload,
		Severity:    ErrorSeverityLow,
		Component:   "dnac",
		Operation:   "membership",
		Tenant:      tenant,
		SiteID:      siteID,
		Recoverable: true,
	}))
}

// LogAPIError logs a failed controller call
func LogAPIError(logger logrus.FieldLogger, err error, tenant, operation string) {
	LogStructuredError(logger, NewStructuredError(err, ErrorContext{
		Category:    ErrorCategoryAPI,
		Severity:    ErrorSeverityMedium,
		Component:   "dnac",
		Operation:   operation,
		Tenant:      tenant,
		Recoverable: true,
	}))
}

// LogCacheError logs a cache backend failure; callers fall through to the controller
func LogCacheError(logger logrus.FieldLogger, err error, operation, key string) {
	LogStructuredError(logger, NewStructuredError(err, ErrorContext{
		Category:    ErrorCategoryCache,
		Severity:    ErrorSeverityLow,
		Component:   "cache",
		Operation:   operation,
		Recoverable: true,
		Metadata: map[string]interface{}{
			"key": key,
		},
	}))
}

// LogStorageError logs database/storage-related errors
func LogStorageError(logger logrus.FieldLogger, err error, operation string, recoverable bool) {
	severity := ErrorSeverityHigh
	if !recoverable {
		severity = ErrorSeverityCritical
	}

	LogStructuredError(logger, NewStructuredError(err, ErrorContext{
		Category:    ErrorCategoryStorage,
		Severity:    severity,
		Component:   "database",
		Operation:   operation,
		Recoverable: recoverable,
	}))
}

// captureStackTrace captures the current stack trace
func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// ClassifyError attempts to classify an error based on its message
func ClassifyError(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryUnknown
	}

	errMsg := strings.ToLower(err.Error())

	keywords := []struct {
		category ErrorCategory
		words    []string
	}{
		{ErrorCategoryAuth, []string{"unauthorized", "authentication", "auth/token", "forbidden", "invalid credentials"}},
		{ErrorCategoryAPI, []string{"connection refused", "connection reset", "no such host", "i/o timeout", "tls handshake", "http error", "status code"}},
		{ErrorCategoryPayload, []string{"unmarshal", "decode", "unexpected payload", "missing response"}},
		{ErrorCategoryCache, []string{"redis", "cache"}},
		{ErrorCategoryStorage, []string{"database", "sqlite", "sql", "constraint", "no space left"}},
		{ErrorCategoryConfig, []string{"config", "configuration", "yaml", "setting"}},
	}

	for _, group := range keywords {
		for _, word := range group.words {
			if strings.Contains(errMsg, word) {
				return group.category
			}
		}
	}

	return ErrorCategoryUnknown
}
