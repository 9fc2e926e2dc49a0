package askworker

import (
	"errors"
	"fmt"
	"testing"

	"github.com/yungbote/chatlore-backend/internal/clients/llm"
	"github.com/yungbote/chatlore-backend/internal/repos"
)

func TestFailAttemptsClosesQuotaRejectionsImmediately(t *testing.T) {
	quota := &llm.OperationError{
		Code:       llm.OperationErrorQueryFailed,
		Operation:  "complete",
		StatusCode: 402,
		Message:    "insufficient_quota",
	}
	// The generator wraps router errors, so the raw and wrapped forms must
	// both hit the terminal branch.
	wrapped := fmt.Errorf("generate answer: %w", quota)

	for _, err := range []error{quota, wrapped} {
		if got := failAttempts(1, err); got != repos.AskMaxAttempts {
			t.Fatalf("quota error on attempt 1: want=%d got=%d", repos.AskMaxAttempts, got)
		}
	}
}

func TestFailAttemptsKeepsOrdinaryErrorsOnBackoff(t *testing.T) {
	cases := []error{
		errors.New("db timeout"),
		&llm.OperationError{Code: llm.OperationErrorRateLimited, StatusCode: 429, Message: "slow down"},
	}
	for _, err := range cases {
		if got := failAttempts(2, err); got != 2 {
			t.Fatalf("%v: attempt count must pass through, got=%d", err, got)
		}
	}
}
