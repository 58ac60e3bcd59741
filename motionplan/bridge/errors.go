package bridge

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrAborted rejects requests that were still pending when the bridge was terminated.
	ErrAborted = errors.New("ik request aborted: bridge terminated")
	// ErrTerminated is returned by Solve after Terminate.
	ErrTerminated = errors.New("ik bridge is terminated")
	// ErrBroken is returned by Solve after the worker failed. Build a new bridge to recover.
	ErrBroken = errors.New("ik bridge is broken")
)

// WorkerTransportError reports that the worker died while requests were outstanding.
type WorkerTransportError struct {
	// RequestID is the request the worker was processing, zero if it was idle.
	RequestID uint64
	// Value is what the worker panicked with.
	Value interface{}
}

func (e *WorkerTransportError) Error() string {
	return fmt.Sprintf("ik worker failed while processing request %d: %v", e.RequestID, e.Value)
}

// IsWorkerTransportError reports whether err is or wraps a WorkerTransportError.
func IsWorkerTransportError(err error) bool {
	var wte *WorkerTransportError
	return errors.As(err, &wte)
}
