package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Pipeline termination errors
const (
	// ErrCodeChannelClosed indicates an operation on a channel past end-of-stream.
	ErrCodeChannelClosed ErrorCode = "CHANNEL_CLOSED"
	// ErrCodeCancelled indicates a blocked operation was released by early termination.
	ErrCodeCancelled ErrorCode = "CANCELLED"
	// ErrCodeSourceExhausted indicates the source yielded fewer items than it declared.
	ErrCodeSourceExhausted ErrorCode = "SOURCE_EXHAUSTED_EARLY"
	// ErrCodeStageFailed indicates a stage terminated because of a collaborator fault.
	ErrCodeStageFailed ErrorCode = "STAGE_FAILED"
	// ErrCodeAlreadyRun indicates a pipeline was started a second time.
	ErrCodeAlreadyRun ErrorCode = "ALREADY_RUN"
	// ErrCodeTimeout indicates an operation did not finish in time.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
)

// Resource errors
const (
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeUnavailable indicates a resource exists but is not ready yet.
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE"
)

// Validation errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required field is missing.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
	// ErrCodeInvalidFormat indicates a field or payload has an invalid format.
	ErrCodeInvalidFormat ErrorCode = "INVALID_FORMAT"
)

// Internal errors
const (
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrCodeDatabaseError indicates a database error.
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"
	// ErrCodeIO indicates a filesystem or stream read/write failure.
	ErrCodeIO ErrorCode = "IO_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeTimeout:       true,
	ErrCodeUnavailable:   true,
	ErrCodeDatabaseError: true,
	ErrCodeIO:            true,
	ErrCodeInternal:      false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
