// Package errors provides structured errors for flows and data sources.
// It implements error types with machine-readable codes, HTTP status mapping,
// and retryable detection following RFC 7807.
package errors
