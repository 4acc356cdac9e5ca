package fsm

import "context"

// State identifies a node in the hierarchy by its fully-qualified dotted or
// underscored name (e.g. "running_picking").
type State string

// Trigger identifies a named event that can fire a transition.
type Trigger string

// Distinguished states and triggers that are always present on every graph,
// per spec.md §3.
const (
	StateReady State = "ready"
	StateFault State = "fault"

	TriggerToFault Trigger = "to_fault"
	TriggerReset   Trigger = "reset"
	TriggerStart   Trigger = "start"
)

// RecoverTrigger returns the synthetic recovery trigger name for a leaf
// state, e.g. RecoverTrigger("placing") == "recover__placing".
func RecoverTrigger(leaf State) Trigger {
	return Trigger("recover__" + string(leaf))
}

// GuardFunc is a pure boolean predicate evaluated before a state change. An
// error return is treated as an internal failure (see GuardError), not as
// a false guard.
type GuardFunc func(inst *Instance) (bool, error)

// HookFunc is a function bound to a state's entry or exit, or to a
// transition's before/after step. Hooks may spawn background work via
// Instance.Spawn but must not block the owning goroutine synchronously.
type HookFunc func(ctx context.Context, inst *Instance) error

// TriggerProducer lazily yields the trigger an auto-timeout or a delayed
// hook should fire, so the same hook body can parameterize which trigger
// fires without a closure per call site.
type TriggerProducer func() Trigger

// StateSpec declares one node of the hierarchy at construction time. A
// StateSpec with no Children is a leaf. A StateSpec with Children must name
// one of them as Initial.
type StateSpec struct {
	Name     string
	Initial  string
	Children []StateSpec
}

// TransitionSpec declares one edge of the graph. Source may be the
// wildcard "*", expanded to one transition per concrete state at graph
// build time (spec.md §4.3).
type TransitionSpec struct {
	Trigger     Trigger
	Source      string
	Destination string
	Guard       GuardFunc
	Before      HookFunc
	After       HookFunc
}

// HistoryEntry is one record in the FSM's bounded transition history.
// DurationMs is populated on entry i when entry i+1 is appended (spec.md
// §3/§4.4 step 7a); it is 0/omitted on the most recent entry until then.
type HistoryEntry struct {
	Timestamp  int64 // unix nanoseconds, set from the owning Clock
	State      State
	DurationMs int64
	hasDur     bool
}

// HasDuration reports whether DurationMs has been backfilled yet.
func (h HistoryEntry) HasDuration() bool { return h.hasDur }
