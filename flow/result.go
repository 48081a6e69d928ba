package flow

import (
	"encoding/json"
	"fmt"
)

type kind uint8

const (
	kindInvalid kind = iota
	kindSuccess
	kindFailure
)

// Result is the outcome of one query: either the transformed items or the
// error that stopped the read. The zero Result is invalid.
type Result[T any] struct {
	kind  kind
	items []T
	err   error
}

// Success returns a successful result. A nil slice is treated as empty.
func Success[T any](items []T) Result[T] {
	if items == nil {
		items = []T{}
	}
	return Result[T]{kind: kindSuccess, items: items}
}

// Failure returns a failed result. It panics if err is nil.
func Failure[T any](err error) Result[T] {
	if err == nil {
		panic("flow: Failure called with a nil error")
	}
	return Result[T]{kind: kindFailure, err: err}
}

// Items returns the items of a successful result, or nil.
func (r Result[T]) Items() []T { return r.items }

// Err returns the error of a failed result, or nil.
func (r Result[T]) Err() error { return r.err }

// IsSuccess reports whether r is a Success.
func (r Result[T]) IsSuccess() bool { return r.kind == kindSuccess }

// IsFailure reports whether r is a Failure.
func (r Result[T]) IsFailure() bool { return r.kind == kindFailure }

// Status returns "success", "failure" or "invalid".
func (r Result[T]) Status() string {
	switch r.kind {
	case kindSuccess:
		return statusSuccess
	case kindFailure:
		return statusFailure
	}
	return "invalid"
}

func (r Result[T]) String() string {
	switch r.kind {
	case kindSuccess:
		return fmt.Sprintf("Success(%d items)", len(r.items))
	case kindFailure:
		return fmt.Sprintf("Failure(%v)", r.err)
	}
	return "Invalid"
}

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

type resultJSON[T any] struct {
	Status string `json:"status"`
	Items  []T    `json:"items,omitempty"`
	Error  string `json:"error,omitempty"`
}

// MarshalJSON encodes r as {"status":"success","items":[...]} or
// {"status":"failure","error":"..."}.
func (r Result[T]) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case kindSuccess:
		// Keep "items": [] for empty results.
		return json.Marshal(struct {
			Status string `json:"status"`
			Items  []T    `json:"items"`
		}{statusSuccess, r.items})
	case kindFailure:
		return json.Marshal(resultJSON[T]{Status: statusFailure, Error: r.err.Error()})
	}
	return nil, fmt.Errorf("flow: cannot marshal an invalid result")
}

// UnmarshalJSON decodes the form written by MarshalJSON. A decoded failure
// carries a RemoteError.
func (r *Result[T]) UnmarshalJSON(data []byte) error {
	var raw resultJSON[T]
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Status {
	case statusSuccess:
		*r = Success(raw.Items)
	case statusFailure:
		*r = Failure[T](RemoteError{Message: raw.Error})
	default:
		return fmt.Errorf("flow: unknown result status %q", raw.Status)
	}
	return nil
}

// RemoteError is a failure decoded from JSON. Two RemoteErrors with the same
// message are equal under DefaultErrorEqual.
type RemoteError struct {
	Message string
}

func (e RemoteError) Error() string { return e.Message }
