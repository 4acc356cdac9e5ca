package fsm

import (
	"sync"

	"vention.dev/cellrt/internal/clock"
)

// taskTracker owns every background task spawned by an Instance — timeouts,
// hook-spawned work — and can cancel all of them atomically. Grounded on
// the teacher's AgentFSM.subscribers bookkeeping in state_machine.go,
// generalized from "list of channels" to "set of cancellable tasks."
//
// Invariant: after cancelAll returns, no task previously tracked is still
// runnable (spec.md §8).
type taskTracker struct {
	mu    sync.Mutex
	tasks map[*clock.Task]struct{}
}

func newTaskTracker() *taskTracker {
	return &taskTracker{tasks: make(map[*clock.Task]struct{})}
}

// track registers a task handle. Safe to call from any goroutine.
func (t *taskTracker) track(task *clock.Task) {
	t.mu.Lock()
	t.tasks[task] = struct{}{}
	t.mu.Unlock()
}

// forget removes a task handle. Instance.trackedSpawn calls it automatically
// once a tracked task's function returns, whether or not it was cancelled;
// runExitHooks and SetTimeout also call it when they cancel a timeout.
func (t *taskTracker) forget(task *clock.Task) {
	t.mu.Lock()
	delete(t.tasks, task)
	t.mu.Unlock()
}

// cancelAll cancels every tracked task and awaits their completion. It is
// idempotent and safe to call re-entrantly from within a transition hook
// running on one of the tracked tasks (it snapshots the set before
// waiting, so a task cancelling itself cannot deadlock on its own Wait).
func (t *taskTracker) cancelAll() {
	t.mu.Lock()
	tasks := make([]*clock.Task, 0, len(t.tasks))
	for task := range t.tasks {
		tasks = append(tasks, task)
	}
	t.tasks = make(map[*clock.Task]struct{})
	t.mu.Unlock()

	for _, task := range tasks {
		task.Cancel()
	}
	for _, task := range tasks {
		_ = task.Wait()
	}
}

// len reports how many tasks are currently tracked (test/diagnostic use).
func (t *taskTracker) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tasks)
}
