// Package rpcrouter implements the ConnectRPC-compatible unary and
// server-streaming HTTP router: route registration under
// /<service_fqn>/<RpcName>, framed envelope encoding for streams, actor
// authentication, and per-actor rate limiting. Grounded on the teacher's
// gin.Engine route groups (main.go, internal/handlers) and
// internal/middleware's auth/rate-limit/error-envelope conventions,
// adapted from the teacher's REST+JSON surface to the spec's fixed
// unary-or-framed-stream wire protocol.
package rpcrouter

import (
	"context"
	"errors"
	"fmt"

	"vention.dev/cellrt/internal/fsm"
)

// Code is one of the fixed set of wire error codes spec.md §4.6 names.
type Code string

// The fixed error taxonomy. Any code outside this set is rewritten to
// CodeUnknown before it reaches a caller.
const (
	CodeCancelled          Code = "cancelled"
	CodeUnknown            Code = "unknown"
	CodeInvalidArgument    Code = "invalid_argument"
	CodeDeadlineExceeded   Code = "deadline_exceeded"
	CodeNotFound           Code = "not_found"
	CodeAlreadyExists      Code = "already_exists"
	CodePermissionDenied   Code = "permission_denied"
	CodeResourceExhausted  Code = "resource_exhausted"
	CodeFailedPrecondition Code = "failed_precondition"
	CodeAborted            Code = "aborted"
	CodeOutOfRange         Code = "out_of_range"
	CodeUnimplemented      Code = "unimplemented"
	CodeInternal           Code = "internal"
	CodeUnavailable        Code = "unavailable"
	CodeDataLoss           Code = "data_loss"
	CodeUnauthenticated    Code = "unauthenticated"
)

var validCodes = map[Code]bool{
	CodeCancelled: true, CodeUnknown: true, CodeInvalidArgument: true,
	CodeDeadlineExceeded: true, CodeNotFound: true, CodeAlreadyExists: true,
	CodePermissionDenied: true, CodeResourceExhausted: true,
	CodeFailedPrecondition: true, CodeAborted: true, CodeOutOfRange: true,
	CodeUnimplemented: true, CodeInternal: true, CodeUnavailable: true,
	CodeDataLoss: true, CodeUnauthenticated: true,
}

// normalize rewrites any code outside the fixed taxonomy to CodeUnknown —
// spec.md §4.6 "Unknown codes are rewritten to unknown."
func (c Code) normalize() Code {
	if validCodes[c] {
		return c
	}
	return CodeUnknown
}

// Error is a wire-classified RPC failure: a fixed-taxonomy code, a
// human-readable message, and optional structured details. An ActionFunc
// or stream publisher may return one directly to pick its own code rather
// than relying on classify's generic mapping.
type Error struct {
	Code    Code
	Message string
	Details []any
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// NewError builds a classified Error, normalizing code to the fixed
// taxonomy.
func NewError(code Code, message string) *Error {
	return &Error{Code: code.normalize(), Message: message}
}

// ErrInvalidArgument marks a handler-level input validation failure distinct
// from a JSON decode failure (both classify to CodeInvalidArgument).
var ErrInvalidArgument = errors.New("rpcrouter: invalid argument")

// ErrUnauthenticated marks a handler-level identity failure distinct from
// the router's own actor-header validation (both classify to
// CodeUnauthenticated).
var ErrUnauthenticated = errors.New("rpcrouter: unauthenticated")

// toWireError converts an arbitrary error from an action/stream handler,
// or from the FSM runtime, into a classified *Error, preserving one
// already classified by the handler itself.
func toWireError(err error) *Error {
	var wireErr *Error
	if errors.As(err, &wireErr) {
		return wireErr
	}
	return NewError(classify(err), err.Error())
}

// classify implements spec.md §4.6's "Mapping rules for arbitrary
// exceptions", adapted to Go error chains via errors.As/errors.Is:
// fsm.ErrNotAllowed and fsm.ErrGuardFailed (a false guard, not an
// erroring one) are precondition failures; fsm.GuardError (an erroring
// guard) and anything else unrecognized is internal per spec.md §4.4
// Failure semantics / §7 kind 5.
func classify(err error) Code {
	var notAllowed *fsm.ErrNotAllowed
	if errors.As(err, &notAllowed) {
		return CodeFailedPrecondition
	}
	var guardFailed *fsm.ErrGuardFailed
	if errors.As(err, &guardFailed) {
		return CodeFailedPrecondition
	}
	var guardErr *fsm.GuardError
	if errors.As(err, &guardErr) {
		return CodeInternal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeDeadlineExceeded
	}
	if errors.Is(err, ErrInvalidArgument) {
		return CodeInvalidArgument
	}
	if errors.Is(err, ErrUnauthenticated) {
		return CodeUnauthenticated
	}
	return CodeInternal
}

// errorEnvelope is the fixed JSON error shape spec.md §4.6/§6 define:
// {"error":{"code":<string>,"message":<string>,"details":[...]}}, used for
// both the unary-error body and a stream's trailer frame payload.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details []any  `json:"details,omitempty"`
}

func newErrorEnvelope(e *Error) errorEnvelope {
	return errorEnvelope{Error: errorBody{Code: string(e.Code), Message: e.Message, Details: e.Details}}
}
