// Package errors provides the structured error type used across framepipe.
// Every failure carries a machine-readable code, a human message, optional
// details and an underlying cause, and maps to an HTTP status for the status
// endpoint.
package errors
