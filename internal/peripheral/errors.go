package peripheral

import (
	"errors"
	"fmt"
)

// Protocol-level outcomes of a read. They are answered to the requesting central and
// never end the session.
var (
	ErrAttributeNotFound = errors.New("attribute not found")
	ErrInvalidOffset     = errors.New("invalid offset")
)

// Operation errors
var (
	ErrAdapterFailure      = errors.New("adapter failure")
	ErrAdapterNotReady     = errors.New("adapter not ready")
	ErrRotationUnsupported = errors.New("profile does not rotate identifiers")
)

// AdapterFailure reports a command rejected by the platform Bluetooth stack, or an
// error event it delivered.
type AdapterFailure struct {
	Op     string // "add service", "start advertising", "notify", ...
	Reason string
	Err    error
}

func (e *AdapterFailure) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s failed", e.Op)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, e.Reason)
}

// Is allows errors.Is(err, ErrAdapterFailure).
func (e *AdapterFailure) Is(target error) bool {
	return target == ErrAdapterFailure
}

func (e *AdapterFailure) Unwrap() error {
	return e.Err
}

func newAdapterFailure(op string, err error) *AdapterFailure {
	f := &AdapterFailure{Op: op, Err: err}
	if err != nil {
		f.Reason = err.Error()
	}
	return f
}

// StateError reports an operation that is not valid in the current state.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.State)
}

// ResponseStatus is the outcome code answered to a read request. Values match the
// ATT error codes.
type ResponseStatus uint8

const (
	StatusSuccess           ResponseStatus = 0x00
	StatusInvalidOffset     ResponseStatus = 0x07
	StatusAttributeNotFound ResponseStatus = 0x0A
	StatusUnlikelyError     ResponseStatus = 0x0E
)

func (s ResponseStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusInvalidOffset:
		return "invalid offset"
	case StatusAttributeNotFound:
		return "attribute not found"
	default:
		return fmt.Sprintf("unlikely error (0x%02x)", uint8(s))
	}
}

// StatusOf maps a HandleRead error onto the response status.
func StatusOf(err error) ResponseStatus {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrInvalidOffset):
		return StatusInvalidOffset
	case errors.Is(err, ErrAttributeNotFound):
		return StatusAttributeNotFound
	default:
		return StatusUnlikelyError
	}
}
