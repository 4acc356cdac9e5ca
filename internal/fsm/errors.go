package fsm

import "fmt"

// Sentinel-style errors the RPC router (internal/rpcrouter) recognizes and
// classifies into the wire error taxonomy. They are returned wrapped (with
// %w) so errors.As/errors.Is keeps working through the runtime's call
// chain.

// ErrNotAllowed is returned by Trigger when no transition resolves for the
// (trigger, current state) pair — spec.md §4.4 step 1.
type ErrNotAllowed struct {
	Trigger        Trigger
	CurrentState   State
	AllowedTrigger []Trigger
}

func (e *ErrNotAllowed) Error() string {
	return fmt.Sprintf("trigger %q not allowed from state %q (allowed: %v)", e.Trigger, e.CurrentState, e.AllowedTrigger)
}

// ErrGuardFailed is returned when a transition's guard evaluates to false —
// spec.md §4.4 step 2. Distinct from a guard that returns an error (see
// GuardError below), which is an internal failure, not a precondition one.
type ErrGuardFailed struct {
	Trigger      Trigger
	CurrentState State
}

func (e *ErrGuardFailed) Error() string {
	return fmt.Sprintf("guard failed for trigger %q from state %q", e.Trigger, e.CurrentState)
}

// GuardError wraps an error a guard function returned. Per spec.md §4.4
// Failure semantics ("A guard raising an error behaves as guard failed
// plus is surfaced to the caller as an internal error"), this is rendered
// by the router as `internal`, never `failed_precondition`.
type GuardError struct {
	Trigger Trigger
	Source  State
	Err     error
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("guard for trigger %q from state %q returned an error: %v", e.Trigger, e.Source, e.Err)
}

func (e *GuardError) Unwrap() error { return e.Err }

// ErrAlreadyStarted is returned by Start when the FSM has already left its
// initial `ready` state. See SPEC_FULL.md §11 Open Question decision.
var ErrAlreadyStarted = fmt.Errorf("fsm: already started")

// ErrUnknownState is a graph construction error: a transition or initial
// child referenced a state name that was never declared.
type ErrUnknownState struct {
	Name string
}

func (e *ErrUnknownState) Error() string {
	return fmt.Sprintf("fsm: unknown state %q", e.Name)
}

// ErrUnknownTrigger names a trigger that was never declared on any
// transition. Neither buildGraph nor resolve returns it: resolving an
// undeclared trigger yields *ErrNotAllowed.
type ErrUnknownTrigger struct {
	Name Trigger
}

func (e *ErrUnknownTrigger) Error() string {
	return fmt.Sprintf("fsm: unknown trigger %q", e.Name)
}

// HookError wraps an error returned by a before/after/enter/exit hook.
// Per spec.md §7's propagation policy, it always propagates out of
// Trigger(); whether the FSM keeps the state it mutated into or stays
// unchanged depends on whether Site names a pre-mutation hook (before,
// exit) or a post-mutation one (enter, after) — see applyTrigger in
// runtime.go.
type HookError struct {
	Site string
	Err  error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("hook %s returned an error: %v", e.Site, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }
