package rpcregistry

import (
	"context"
	"reflect"
	"strings"

	"vention.dev/cellrt/internal/fsm"
)

// TriggerResult is the fixed output shape of every synthesized Trigger_*
// action — spec.md §4.7: "a fixed output {result, previousState,
// newState}".
type TriggerResult struct {
	Result        bool
	PreviousState string
	NewState      string
}

// GetStateResult is GetState's fixed output shape — spec.md §4.7:
// "{state, lastState?}". LastState is nil when the instance has no
// recorded last-recoverable leaf.
type GetStateResult struct {
	State     string
	LastState *string
}

// HistoryRecord is one entry of GetHistory's history array — spec.md
// §4.7: "{timestamp, state, durationMs?}". DurationMs is nil until the
// runtime backfills it (the most recent entry, until superseded).
type HistoryRecord struct {
	Timestamp  int64
	State      string
	DurationMs *int64
}

// GetHistoryResult is GetHistory's fixed output shape — spec.md §4.7:
// "{history:[...], bufferSize}".
type GetHistoryResult struct {
	History    []HistoryRecord
	BufferSize int
}

var (
	triggerResultType    = reflect.TypeOf(TriggerResult{})
	getStateResultType   = reflect.TypeOf(GetStateResult{})
	getHistoryResultType = reflect.TypeOf(GetHistoryResult{})
)

// FSMBundle generates the RpcBundle spec.md §4.7's "trigger-bundle
// generator for the FSM" describes: one no-input ActionEntry per trigger
// declared on inst's graph, named Trigger_<PascalCaseTrigger>, plus
// GetState and GetHistory. historyBufferSize is the configured capacity
// reported back on GetHistoryResult.BufferSize (the instance's history
// itself only reports how many entries it currently holds, not its cap).
//
// Trigger_X's precondition check is just inst.Trigger's own resolve step:
// a trigger not available from the current state returns fsm.ErrNotAllowed,
// which internal/rpcrouter's error-code mapping renders as
// failed_precondition — there is no separate availability check here.
func FSMBundle(inst *fsm.Instance, historyBufferSize int) RpcBundle {
	var bundle RpcBundle

	for _, trig := range inst.Triggers() {
		trig := trig // pin for the closure
		bundle.Actions = append(bundle.Actions, ActionEntry{
			Name:       "Trigger_" + triggerPascalCase(string(trig)),
			OutputType: triggerResultType,
			Func: func(ctx context.Context, _ any) (any, error) {
				before := inst.CurrentState()
				if err := inst.Trigger(ctx, trig); err != nil {
					return nil, err
				}
				return TriggerResult{
					Result:        true,
					PreviousState: string(before),
					NewState:      string(inst.CurrentState()),
				}, nil
			},
		})
	}

	bundle.Actions = append(bundle.Actions, ActionEntry{
		Name:       "GetState",
		OutputType: getStateResultType,
		Func: func(ctx context.Context, _ any) (any, error) {
			snap := inst.Snapshot()
			out := GetStateResult{State: string(snap.State)}
			if snap.HasRecoverable {
				last := string(snap.LastRecoverable)
				out.LastState = &last
			}
			return out, nil
		},
	})

	bundle.Actions = append(bundle.Actions, ActionEntry{
		Name:       "GetHistory",
		OutputType: getHistoryResultType,
		Func: func(ctx context.Context, _ any) (any, error) {
			entries := inst.History()
			records := make([]HistoryRecord, len(entries))
			for i, e := range entries {
				records[i] = HistoryRecord{Timestamp: e.Timestamp, State: string(e.State)}
				if e.HasDuration() {
					d := e.DurationMs
					records[i].DurationMs = &d
				}
			}
			return GetHistoryResult{History: records, BufferSize: historyBufferSize}, nil
		},
	})

	return bundle
}

// triggerPascalCase converts a snake_case (and __-separated) trigger name
// into the PascalCase suffix used in its Trigger_<Name> action, e.g.
// "to_fault" -> "ToFault", "recover__placing" -> "RecoverPlacing".
func triggerPascalCase(trigger string) string {
	parts := strings.Split(trigger, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
