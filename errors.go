package tradeledger

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is matched by errors.Is for a store that stayed
	// unreachable after all retries.
	ErrUnavailable = errors.New("ledger store unavailable")
	// ErrNotFound reports that the requested data does not exist.
	ErrNotFound = errors.New("not found")
	// ErrRoundLimit is matched by errors.Is for a turn that used all its tool rounds.
	ErrRoundLimit = errors.New("tool round limit reached")
	// ErrUnknownTool reports a tool name outside the closed tool set.
	ErrUnknownTool = errors.New("unknown tool")
)

// ValidationError is a malformed input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IntegrityError is a constraint violation reported by the store.
type IntegrityError struct {
	Err error
}

func (e *IntegrityError) Error() string { return fmt.Sprintf("integrity violation: %v", e.Err) }
func (e *IntegrityError) Unwrap() error { return e.Err }

// TransientStoreError is a connectivity failure that persisted after Attempts tries.
type TransientStoreError struct {
	Attempts int
	Err      error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("ledger store unavailable after %d attempt(s): %v", e.Attempts, e.Err)
}
func (e *TransientStoreError) Unwrap() error        { return e.Err }
func (e *TransientStoreError) Is(target error) bool { return target == ErrUnavailable }

// UnsupportedQueryError rejects a passthrough statement that is not a single
// SELECT against the ledger table.
type UnsupportedQueryError struct {
	Reason string
}

func (e *UnsupportedQueryError) Error() string { return "unsupported query: " + e.Reason }

// CompletionServiceError is a failure of the completion service. The turn is
// not committed and the caller may retry it.
type CompletionServiceError struct {
	Err error
}

func (e *CompletionServiceError) Error() string   { return fmt.Sprintf("completion service: %v", e.Err) }
func (e *CompletionServiceError) Unwrap() error   { return e.Err }
func (e *CompletionServiceError) Retryable() bool { return true }

// RoundLimitError reports a turn that reached its tool round cap without a
// final answer.
type RoundLimitError struct {
	Rounds int
}

func (e *RoundLimitError) Error() string {
	return fmt.Sprintf("no final answer after %d tool round(s)", e.Rounds)
}
func (e *RoundLimitError) Is(target error) bool { return target == ErrRoundLimit }

// ErrorKind names the taxonomy class of err, as reported to the model in tool results.
func ErrorKind(err error) string {
	var (
		verr *ValidationError
		ierr *IntegrityError
		qerr *UnsupportedQueryError
		cerr *CompletionServiceError
	)
	switch {
	case errors.As(err, &verr):
		return "validation"
	case errors.As(err, &ierr):
		return "integrity"
	case errors.As(err, &qerr):
		return "unsupported_query"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnknownTool):
		return "unknown_tool"
	case errors.As(err, &cerr):
		return "completion_service"
	case errors.Is(err, ErrRoundLimit):
		return "round_limit"
	default:
		return "internal"
	}
}
