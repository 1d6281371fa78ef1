package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_New_Success(t *testing.T) {
	err := New(ErrCodeNotFound, "not found", http.StatusNotFound)
	if err.Code != ErrCodeNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeNotFound, err.Code)
	}
	if err.Message != "not found" {
		t.Errorf("expected message 'not found', got %q", err.Message)
	}
	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, err.HTTPStatus)
	}
	if err.Retryable {
		t.Error("NOT_FOUND should not be retryable")
	}
}

func TestAppError_New_Retryable(t *testing.T) {
	err := New(ErrCodeTimeout, "timed out", http.StatusGatewayTimeout)
	if !err.Retryable {
		t.Error("TIMEOUT should be retryable")
	}
}

func TestAppError_Is_MatchesByCode(t *testing.T) {
	sentinel := Cancelled(nil)
	err := fmt.Errorf("extractor: %w", Cancelled(context.Canceled))

	if !stderrors.Is(err, sentinel) {
		t.Error("expected wrapped CANCELLED to match sentinel")
	}
	if !stderrors.Is(err, context.Canceled) {
		t.Error("expected cause to stay reachable through the chain")
	}
	if stderrors.Is(err, ChannelClosed("")) {
		t.Error("CANCELLED must not match CHANNEL_CLOSED")
	}
}

func TestAppError_Is_NilTarget(t *testing.T) {
	var target *AppError
	if Internal(nil).Is(target) {
		t.Error("nil target should never match")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"app error", StageFailed("sink", nil), ErrCodeStageFailed},
		{"wrapped", fmt.Errorf("outer: %w", ChannelClosed("a")), ErrCodeChannelClosed},
		{"plain", fmt.Errorf("plain"), ""},
		{"nil", nil, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CodeOf(tc.err); got != tc.want {
				t.Errorf("CodeOf() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStageFailed_CarriesStageAndCause(t *testing.T) {
	cause := fmt.Errorf("decode failed")
	err := StageFailed("transformer", cause)
	if err.Details["stage"] != "transformer" {
		t.Errorf("expected stage=transformer, got %v", err.Details["stage"])
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected cause to be reachable")
	}
	if !strings.Contains(err.Error(), "decode failed") {
		t.Errorf("Error() should contain cause, got %q", err.Error())
	}
}

func TestSourceExhaustedEarly_Details(t *testing.T) {
	err := SourceExhaustedEarly(10, 7)
	if err.Details["declared"] != 10 || err.Details["produced"] != 7 {
		t.Errorf("unexpected details %v", err.Details)
	}
	if !strings.Contains(err.Message, "declared 10") {
		t.Errorf("unexpected message %q", err.Message)
	}
}

func TestChannelClosed_EmptyName(t *testing.T) {
	err := ChannelClosed("")
	if _, ok := err.Details["channel"]; ok {
		t.Error("expected no 'channel' key when name is empty")
	}
}

func TestAppError_NotFound_Success(t *testing.T) {
	err := NotFound("run", "123")
	if err.Code != ErrCodeNotFound {
		t.Errorf("expected NOT_FOUND, got %s", err.Code)
	}
	if err.Details["resource"] != "run" {
		t.Errorf("expected resource=run, got %v", err.Details["resource"])
	}
	if err.Details["id"] != "123" {
		t.Errorf("expected id=123, got %v", err.Details["id"])
	}
}

func TestAppError_NotFound_EmptyID(t *testing.T) {
	err := NotFound("run", "")
	if _, ok := err.Details["id"]; ok {
		t.Error("expected no 'id' key in details when id is empty")
	}
}

func TestAppError_Internal_Success(t *testing.T) {
	cause := fmt.Errorf("disk gone")
	err := Internal(cause)
	if err.Code != ErrCodeInternal {
		t.Errorf("expected INTERNAL_ERROR, got %s", err.Code)
	}
	if err.Cause != cause {
		t.Error("expected cause to be set")
	}
	if err.Retryable {
		t.Error("Internal should NOT be retryable by default")
	}
}

func TestAppError_WithDetails_Merge(t *testing.T) {
	err := NotFound("item", "1").WithDetails(map[string]any{"extra": "info"})
	if err.Details["extra"] != "info" {
		t.Errorf("expected extra=info in details")
	}
	if err.Details["resource"] != "item" {
		t.Error("expected original details to be preserved")
	}
}

func TestAppError_WithDetail_NilMap(t *testing.T) {
	err := &AppError{}
	err.WithDetail("key", "value")
	if err.Details["key"] != "value" {
		t.Errorf("expected key=value, got %v", err.Details["key"])
	}
}

func TestAppError_Constructors_Table(t *testing.T) {
	tests := []struct {
		name      string
		err       *AppError
		code      ErrorCode
		status    int
		retryable bool
	}{
		{"ChannelClosed", ChannelClosed("raw"), ErrCodeChannelClosed, http.StatusConflict, false},
		{"Cancelled", Cancelled(nil), ErrCodeCancelled, 499, false},
		{"StageFailed", StageFailed("sink", nil), ErrCodeStageFailed, http.StatusInternalServerError, false},
		{"AlreadyRun", AlreadyRun(), ErrCodeAlreadyRun, http.StatusConflict, false},
		{"Timeout", Timeout("drain"), ErrCodeTimeout, http.StatusGatewayTimeout, true},
		{"Unavailable", Unavailable("report"), ErrCodeUnavailable, http.StatusServiceUnavailable, true},
		{"MissingField", MissingField("name"), ErrCodeMissingField, http.StatusBadRequest, false},
		{"InvalidFormat", InvalidFormat("frame", "BGR24"), ErrCodeInvalidFormat, http.StatusBadRequest, false},
		{"DatabaseError", DatabaseError(nil), ErrCodeDatabaseError, http.StatusInternalServerError, true},
		{"IOError", IOError("/tmp/x", nil), ErrCodeIO, http.StatusInternalServerError, true},
		{"Validation", Validation("bad input"), ErrCodeInvalidInput, http.StatusBadRequest, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Code != tc.code {
				t.Errorf("expected code %s, got %s", tc.code, tc.err.Code)
			}
			if tc.err.HTTPStatus != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, tc.err.HTTPStatus)
			}
			if tc.err.Retryable != tc.retryable {
				t.Errorf("expected retryable=%v, got %v", tc.retryable, tc.err.Retryable)
			}
		})
	}
}

func TestAppError_ToResponse_Success(t *testing.T) {
	err := NotFound("run", "42")
	resp := err.ToResponse()
	if resp.Error.Code != ErrCodeNotFound {
		t.Errorf("expected code NOT_FOUND in response, got %s", resp.Error.Code)
	}
	if resp.Error.Details["resource"] != "run" {
		t.Error("expected resource=run in response details")
	}
}

func TestAppError_AsAppError_Success(t *testing.T) {
	wrapped := fmt.Errorf("wrap: %w", Internal(nil))

	got, ok := AsAppError(wrapped)
	if !ok {
		t.Fatal("expected AsAppError to succeed for wrapped AppError")
	}
	if got.Code != ErrCodeInternal {
		t.Errorf("expected INTERNAL_ERROR, got %s", got.Code)
	}
	if IsAppError(fmt.Errorf("not an app error")) {
		t.Error("expected IsAppError to return false for non-AppError")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil) != nil {
		t.Error("Wrap(nil) should return nil")
	}

	orig := NotFound("item", "1")
	if Wrap(orig) != orig {
		t.Error("Wrap should return the original AppError unchanged")
	}

	plain := fmt.Errorf("something broke")
	got := Wrap(plain)
	if got.Code != ErrCodeInternal || got.Cause != plain {
		t.Errorf("expected INTERNAL_ERROR wrapping plain error, got %v", got)
	}
}
