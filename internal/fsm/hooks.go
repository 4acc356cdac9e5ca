package fsm

import (
	"context"
	"fmt"
)

// runEnterHooks executes a state's enter hooks in declaration order,
// stopping at the first one that errors, then — only if every hook
// succeeded — arms its auto-timeout (if any) as a tracked background
// task. A failing enter hook's error is returned to applyTrigger, which
// propagates it out of Trigger() per spec.md §7's propagation policy: the
// state mutation (step 5) has already happened by the time enter hooks
// run (step 6), so the FSM keeps its new leaf even though the error is
// surfaced to the caller.
func (inst *Instance) runEnterHooks(ctx context.Context, n *node) error {
	for _, h := range n.enterHooks {
		if err := inst.runHook(ctx, h, fmt.Sprintf("enter:%s", n.name)); err != nil {
			return err
		}
	}
	if n.autoTimeout != nil {
		inst.armAutoTimeout(n.name, n.autoTimeout)
	}
	return nil
}

// runExitHooks executes a state's exit hooks in declaration order,
// stopping at the first one that errors, then — only if every hook
// succeeded — disarms any auto-timeout still pending for the state being
// exited. Exit hooks run before the state mutation (step 4 precedes step
// 5), so per spec.md §7 a failing one aborts the transition entirely:
// applyTrigger returns the error without ever mutating current_state, and
// the state being "exited" is in fact never left, so its timeout must
// stay armed rather than be disarmed out from under it.
func (inst *Instance) runExitHooks(ctx context.Context, n *node) error {
	for _, h := range n.exitHooks {
		if err := inst.runHook(ctx, h, fmt.Sprintf("exit:%s", n.name)); err != nil {
			return err
		}
	}
	if task, ok := inst.activeTimeouts[n.name]; ok {
		task.Cancel()
		inst.tasks.forget(task)
		delete(inst.activeTimeouts, n.name)
	}
	return nil
}

// runHook invokes a single hook, recording its error on the instance for
// diagnostics (see recordHookError) and returning
// it as a *HookError so the caller can propagate it per spec.md §7 —
// hooks can veto nothing (guards already ran in step 2), but their errors
// are not swallowed.
func (inst *Instance) runHook(ctx context.Context, h HookFunc, site string) error {
	if h == nil {
		return nil
	}
	if err := h(ctx, inst); err != nil {
		inst.recordHookError(site, err)
		return &HookError{Site: site, Err: err}
	}
	return nil
}

// armAutoTimeout spawns a tracked task that sleeps for the configured
// duration, then — unless cancelled first by a subsequent exit from the
// same state — fires the configured trigger against this instance.
func (inst *Instance) armAutoTimeout(owner State, spec *autoTimeoutSpec) {
	seconds := spec.seconds
	trigger := spec.trigger
	task := inst.trackedSpawn(context.Background(), func(ctx context.Context) {
		d := secondsToDuration(seconds)
		if err := inst.clk.Sleep(ctx, d); err != nil {
			return // cancelled: the state was exited before the timeout fired
		}
		inst.fireIfStillIn(owner, trigger())
	})
	inst.activeTimeouts[owner] = task
}
