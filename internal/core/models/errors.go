package models

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	SignalDisposed ErrorKind = iota + 1
	UpdateFailed
	MemoryManagementFailed
	BatchedUpdateFailed
)

func (k ErrorKind) String() string {
	switch k {
	case SignalDisposed:
		return "SignalDisposed"
	case UpdateFailed:
		return "UpdateFailed"
	case MemoryManagementFailed:
		return "MemoryManagementFailed"
	case BatchedUpdateFailed:
		return "BatchedUpdateFailed"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ManagementError is the only error kind returned by the registry, the
// manager, the leak detector and the batch queue. It is a plain comparable
// value without a cause chain.
type ManagementError struct {
	Kind   ErrorKind
	Reason string
}

var ErrSignalDisposed = ManagementError{Kind: SignalDisposed}

func NewUpdateFailed(reason string) ManagementError {
	return ManagementError{Kind: UpdateFailed, Reason: reason}
}

func NewMemoryManagementFailed(reason string) ManagementError {
	return ManagementError{Kind: MemoryManagementFailed, Reason: reason}
}

func NewBatchedUpdateFailed(reason string) ManagementError {
	return ManagementError{Kind: BatchedUpdateFailed, Reason: reason}
}

func (e ManagementError) Error() string {
	switch e.Kind {
	case SignalDisposed:
		return "Signal has been disposed"
	case UpdateFailed:
		return "Signal update failed: " + e.Reason
	case MemoryManagementFailed:
		return "Memory management operation failed: " + e.Reason
	case BatchedUpdateFailed:
		return "Batched update operation failed: " + e.Reason
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
}

// Is matches on kind alone when target carries no reason, so
// errors.Is(err, ManagementError{Kind: BatchedUpdateFailed}) works for any reason.
func (e ManagementError) Is(target error) bool {
	t, ok := target.(ManagementError)
	if !ok {
		return false
	}
	if t.Reason == "" {
		return e.Kind == t.Kind
	}
	return e == t
}

// IsKind reports whether err is, or wraps, a ManagementError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var me ManagementError
	if errors.As(err, &me) {
		return me.Kind == kind
	}
	return false
}
