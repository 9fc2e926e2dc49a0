package llm

import (
	"errors"
	"fmt"
)

type OperationErrorCode string

const (
	OperationErrorEncodeFailed    OperationErrorCode = "encode_failed"
	OperationErrorDecodeFailed    OperationErrorCode = "decode_failed"
	OperationErrorTransportFailed OperationErrorCode = "transport_failed"
	OperationErrorRateLimited     OperationErrorCode = "rate_limited"
	OperationErrorQueryFailed     OperationErrorCode = "query_failed"
	OperationErrorAllFailed       OperationErrorCode = "all_endpoints_failed"
)

type OperationError struct {
	Code       OperationErrorCode
	Operation  string
	StatusCode int
	Message    string
	Cause      error
}

func (e *OperationError) Error() string {
	if e == nil {
		return "llm operation failed"
	}
	if e.Message != "" {
		return fmt.Sprintf("llm operation failed (op=%s code=%s status=%d): %s",
			e.Operation, e.Code, e.StatusCode, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("llm operation failed (op=%s code=%s status=%d): %v",
			e.Operation, e.Code, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("llm operation failed (op=%s code=%s status=%d)",
		e.Operation, e.Code, e.StatusCode)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *OperationError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// IsQuotaExhausted reports a hard quota rejection that should not be
// retried. Pipeline errors arrive wrapped, so it unwraps.
func IsQuotaExhausted(err error) bool {
	var oe *OperationError
	if errors.As(err, &oe) {
		return oe.StatusCode == 402 || (oe.StatusCode == 429 && containsInsufficientQuota(oe.Message))
	}
	return false
}

func containsInsufficientQuota(msg string) bool {
	return msg != "" && (stringsContainsFold(msg, "insufficient_quota") || stringsContainsFold(msg, "quota exceeded"))
}

func opErr(op string, code OperationErrorCode, msg string, cause error) *OperationError {
	return &OperationError{Code: code, Operation: op, Message: msg, Cause: cause}
}
