package fsm

import (
	"context"
	"errors"
	"sync"
	"time"

	"vention.dev/cellrt/internal/clock"
	"vention.dev/cellrt/internal/metrics"
)

// ErrInstanceStopped is returned by any Instance method invoked after Stop.
var ErrInstanceStopped = errors.New("fsm: instance stopped")

// Event is published to an Instance's onEvent callback (wired to an
// internal/broker topic by the owning application) after every committed
// transition.
type Event struct {
	From      State
	To        State
	Trigger   Trigger
	Timestamp int64 // unix nanoseconds, from the instance's Clock
}

// Snapshot is a point-in-time, externally safe copy of an instance's
// observable state, suitable for an RPC response (internal/rpcregistry's
// GetState bundle entry).
type Snapshot struct {
	State            State
	Started          bool
	LastRecoverable  State
	HasRecoverable   bool
	AvailableTriggers []Trigger
}

// Definition is the immutable, reusable machine blueprint produced by
// Builder.Build. One Definition can back many concurrent Instances, the way
// one gin router backs many requests — all the per-instance mutable state
// (current leaf, history, tracked tasks) lives on Instance.
type Definition struct {
	graph                   *Graph
	historySize             int
	enableLastStateRecovery bool
}

// Builder assembles a Definition from a declared state tree, a transition
// list, and per-state hooks. Grounded on the teacher's functional-options
// constructors (e.g. NewAgentFSM in state_machine.go), adapted here to a
// fluent builder since the hook set is keyed by state name rather than a
// fixed struct of fields.
type Builder struct {
	roots       []StateSpec
	startState  string
	transitions []TransitionSpec

	enterHooks   map[string][]HookFunc
	exitHooks    map[string][]HookFunc
	autoTimeouts map[string]*autoTimeoutSpec

	historySize             int
	enableLastStateRecovery bool
}

// NewBuilder begins a Definition for the given root state tree and the
// destination of the distinguished `start` trigger. This library-level
// fallback (100) is deliberately independent of internal/config's
// application-level `history_size` default (1000, per spec.md §6) — a
// caller using the Builder directly without going through internal/config
// gets a smaller, library-neutral history rather than silently inheriting
// an application policy it never opted into. internal/config always
// passes its own default explicitly via HistorySize, so the two numbers
// never collide in practice.
func NewBuilder(roots []StateSpec, startState string) *Builder {
	return &Builder{
		roots:        roots,
		startState:   startState,
		enterHooks:   make(map[string][]HookFunc),
		exitHooks:    make(map[string][]HookFunc),
		autoTimeouts: make(map[string]*autoTimeoutSpec),
		historySize:  100,
	}
}

// OnEnter registers a hook run (in registration order, alongside any other
// enter hooks on the same state) when state is entered.
func (b *Builder) OnEnter(state string, hook HookFunc) *Builder {
	b.enterHooks[state] = append(b.enterHooks[state], hook)
	return b
}

// OnExit registers a hook run when state is exited.
func (b *Builder) OnExit(state string, hook HookFunc) *Builder {
	b.exitHooks[state] = append(b.exitHooks[state], hook)
	return b
}

// OnEnterWithTimeout registers an auto-timeout on state: seconds after
// entry, unless the state is exited first, trigger() is fired against the
// instance. hook (optional) runs as an ordinary enter hook before the
// timeout is armed. At most one auto-timeout may be registered per state.
func (b *Builder) OnEnterWithTimeout(state string, seconds float64, trigger TriggerProducer, hook HookFunc) *Builder {
	if hook != nil {
		b.OnEnter(state, hook)
	}
	b.autoTimeouts[state] = &autoTimeoutSpec{seconds: seconds, trigger: trigger}
	return b
}

// AddTransition declares one edge. Source may be "*".
func (b *Builder) AddTransition(t TransitionSpec) *Builder {
	b.transitions = append(b.transitions, t)
	return b
}

// HistorySize overrides the default bounded-history capacity (100).
func (b *Builder) HistorySize(n int) *Builder {
	b.historySize = n
	return b
}

// EnableLastStateRecovery turns on the last-recoverable-state check for
// `recover__<leaf>` triggers: when enabled, only the leaf the instance
// actually occupied before its most recent fault may be recovered into.
func (b *Builder) EnableLastStateRecovery(enable bool) *Builder {
	b.enableLastStateRecovery = enable
	return b
}

// Build validates and freezes the Definition.
func (b *Builder) Build() (*Definition, error) {
	g, err := buildGraph(b.roots, b.startState, b.transitions)
	if err != nil {
		return nil, err
	}
	for name, hooks := range b.enterHooks {
		n, ok := g.nodes[State(name)]
		if !ok {
			return nil, &ErrUnknownState{Name: name}
		}
		n.enterHooks = hooks
	}
	for name, hooks := range b.exitHooks {
		n, ok := g.nodes[State(name)]
		if !ok {
			return nil, &ErrUnknownState{Name: name}
		}
		n.exitHooks = hooks
	}
	for name, at := range b.autoTimeouts {
		n, ok := g.nodes[State(name)]
		if !ok {
			return nil, &ErrUnknownState{Name: name}
		}
		n.autoTimeout = at
	}
	size := b.historySize
	if size <= 0 {
		size = 100
	}
	return &Definition{graph: g, historySize: size, enableLastStateRecovery: b.enableLastStateRecovery}, nil
}

// Instance is one running machine: a Definition plus all the mutable state
// that changes as triggers fire. Every mutation is serialized through a
// single owning goroutine reading off cmdCh — there is deliberately no
// mutex guarding Instance fields, the same single-threaded-apartment model
// the teacher's AgentFSM.mu achieves with a lock, done here instead with
// channel ownership so hook code can safely call back into the instance
// (e.g. Spawn, SetTimeout) without risking self-deadlock on a held mutex.
type Instance struct {
	id  string
	def *Definition
	clk clock.Clock

	tasks          *taskTracker
	hist           *history
	recovery       *recoveryTracker
	onEvent        func(Event)
	activeTimeouts map[State]*clock.Task // owning-goroutine only, no lock needed

	current      State
	currentSince int64 // unix nanoseconds the current leaf was entered, for FSMStateDuration
	started      bool

	hookErrs []hookError

	cmdCh   chan func()
	stopCh  chan struct{}
	stopped bool
	stopMu  sync.Mutex
}

type hookError struct {
	Site string
	Err  error
}

// InstanceOption configures optional construction-time state for an
// Instance, the way Builder's fluent methods configure a Definition.
type InstanceOption func(*Instance)

// WithRecoveredState seeds the instance's last-recoverable-state tracker
// with leaf, as if a previous instance had last occupied it before
// faulting. This is how spec.md §8 scenario 6 ("new FSM instance with the
// same last_recoverable_state calls start()") is expressed: the runtime
// keeps no state across process restarts itself (spec.md §6 "No persisted
// state"), so a caller that does persist last_recoverable_state externally
// replays it in via this option.
func WithRecoveredState(leaf State) InstanceOption {
	return func(inst *Instance) { inst.recovery.seed(leaf) }
}

// NewInstance creates an Instance from def, not yet started (current ==
// ready). onEvent, if non-nil, is invoked synchronously on the owning
// goroutine after each committed transition — callers that need this to
// reach a broker topic should have onEvent publish asynchronously rather
// than block.
func NewInstance(id string, def *Definition, clk clock.Clock, onEvent func(Event), opts ...InstanceOption) *Instance {
	if clk == nil {
		clk = clock.NewReal()
	}
	inst := &Instance{
		id:             id,
		def:            def,
		clk:            clk,
		tasks:          newTaskTracker(),
		hist:           newHistory(def.historySize),
		recovery:       newRecoveryTracker(def.enableLastStateRecovery),
		onEvent:        onEvent,
		activeTimeouts: make(map[State]*clock.Task),
		current:        StateReady,
		cmdCh:          make(chan func()),
		stopCh:         make(chan struct{}),
	}
	inst.currentSince = clk.Now().UnixNano()
	for _, opt := range opts {
		opt(inst)
	}
	metrics.Get().FSMInstancesGauge.WithLabelValues(id).Inc()
	go inst.run()
	return inst
}

func (inst *Instance) run() {
	for {
		select {
		case fn := <-inst.cmdCh:
			fn()
		case <-inst.stopCh:
			return
		}
	}
}

// ID returns the instance's identity, stable for its lifetime.
func (inst *Instance) ID() string { return inst.id }

// Trigger fires trig against the instance and blocks until the resulting
// transition (or rejection) has fully committed, or ctx is done first. A
// ctx cancellation after the command has been accepted onto the owning
// goroutine does not abort the transition already in flight — only the
// caller's wait for the result.
func (inst *Instance) Trigger(ctx context.Context, trig Trigger) error {
	resultCh := make(chan error, 1)
	cmd := func() { resultCh <- inst.applyTrigger(ctx, trig) }
	select {
	case inst.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-inst.stopCh:
		return ErrInstanceStopped
	}
	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start enters the machine. If recovery is enabled and a last-recoverable
// leaf is known (observed earlier in this instance's life, or seeded via
// WithRecoveredState), it fires `recover__<leaf>` instead of the plain
// `start` trigger — spec.md §4.4 Start()'s recovery branch. It fails with
// ErrAlreadyStarted if the instance has left `ready` before (SPEC_FULL.md
// §11 decision 2: a double Start is rejected, not a no-op).
func (inst *Instance) Start(ctx context.Context) error {
	resultCh := make(chan error, 1)
	cmd := func() {
		if inst.started {
			resultCh <- ErrAlreadyStarted
			return
		}
		trig := TriggerStart
		if leaf, ok := inst.recovery.shouldRecover(); ok {
			trig = RecoverTrigger(leaf)
		}
		resultCh <- inst.applyTrigger(ctx, trig)
	}
	select {
	case inst.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-inst.stopCh:
		return ErrInstanceStopped
	}
	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fireAsync enqueues trig without waiting for the result; used by
// auto-timeout tasks firing from their own goroutine.
func (inst *Instance) fireAsync(trig Trigger) {
	select {
	case inst.cmdCh <- func() { _ = inst.applyTrigger(context.Background(), trig) }:
	case <-inst.stopCh:
	}
}

// fireIfStillIn enqueues trig only if the instance is still in exactly
// owner at the moment the command runs on the owning goroutine. This is
// the "still in S?" check spec.md §4.4 calls out as the subtle part of
// timeout semantics: Clock.Sleep's cancellation and its timer can race
// (a Go select between timer.C and ctx.Done has no preferred case), so a
// woken timeout task cannot trust that Cancel "won" the race just
// because it was called. Re-checking current state here, on the single
// owning goroutine where current can't change concurrently, closes that
// race regardless of which branch Sleep's select happened to take.
func (inst *Instance) fireIfStillIn(owner State, trig Trigger) {
	cmd := func() {
		if inst.current != owner {
			return
		}
		_ = inst.applyTrigger(context.Background(), trig)
	}
	select {
	case inst.cmdCh <- cmd:
	case <-inst.stopCh:
	}
}

// applyTrigger runs entirely on the owning goroutine. It implements
// spec.md §4.4 steps 1-8: resolve, guard, before-hook, exit path, commit,
// enter path, history append, after-hook, publish.
func (inst *Instance) applyTrigger(ctx context.Context, trig Trigger) error {
	if trig == TriggerStart && inst.started {
		return ErrAlreadyStarted
	}

	rt, err := inst.def.graph.resolve(trig, inst.current)
	if err != nil {
		inst.recordTransitionError(trig, "not_allowed")
		return err
	}

	if leaf, ok := recoverLeaf(trig); ok && !inst.recovery.allows(leaf) {
		inst.recordTransitionError(trig, "recovery_denied")
		return &ErrNotAllowed{
			Trigger:        trig,
			CurrentState:   inst.current,
			AllowedTrigger: inst.def.graph.triggersAvailableFrom(inst.current),
		}
	}

	if rt.guard != nil {
		ok, gerr := rt.guard(inst)
		if gerr != nil {
			inst.recordTransitionError(trig, "guard_error")
			return &GuardError{Trigger: trig, Source: inst.current, Err: gerr}
		}
		if !ok {
			inst.recordTransitionError(trig, "guard_failed")
			return &ErrGuardFailed{Trigger: trig, CurrentState: inst.current}
		}
	}

	// Steps 3-4 (before-hook, exit hooks) run before the state mutation
	// (step 5): per spec.md §7's propagation policy, an error here aborts
	// the transition outright — it propagates out of Trigger() and
	// current_state is left untouched, exactly as a pre-mutation failure
	// must.
	if err := inst.runHook(ctx, rt.before, "before:"+string(trig)); err != nil {
		inst.recordTransitionError(trig, "hook_error")
		return err
	}

	exitPath, enterPath, newLeaf := inst.def.graph.exitEnterPath(inst.current, rt.destination)
	for _, s := range exitPath {
		if err := inst.runExitHooks(ctx, inst.def.graph.nodes[s]); err != nil {
			inst.recordTransitionError(trig, "hook_error")
			return err
		}
	}

	from := inst.current
	inst.current = newLeaf
	inst.started = true

	// Step 6 (enter hooks) runs after the mutation above: per spec.md §7,
	// an error here still propagates out of Trigger(), but current_state
	// has already committed to newLeaf and stays there. The remaining
	// post-mutation steps (7: history append, recovery bookkeeping,
	// after-hook, and the fault cancellation/publish below) did not run
	// yet when the enter hook failed, so they are skipped rather than
	// applied against a transition that never finished entering.
	for _, s := range enterPath {
		if err := inst.runEnterHooks(ctx, inst.def.graph.nodes[s]); err != nil {
			inst.recordTransitionError(trig, "hook_error")
			return err
		}
	}

	ts := inst.clk.Now().UnixNano()
	inst.hist.append(ts, newLeaf)
	inst.recovery.observe(newLeaf)

	metrics.Get().FSMStateDuration.WithLabelValues(inst.id, string(from)).Observe(float64(ts-inst.currentSince) / 1e9)
	inst.currentSince = ts
	metrics.Get().FSMTransitionsTotal.WithLabelValues(inst.id, string(trig), string(newLeaf)).Inc()

	// Step 7's after-hook also runs post-mutation; an error here still
	// leaves the FSM in newLeaf (the history/recovery bookkeeping above
	// already committed, unlike the enter-hook-failure path above, since
	// step 7's own bookkeeping is what just ran), but propagates out of
	// Trigger() and skips the fault-cancellation/publish step below.
	if err := inst.runHook(ctx, rt.after, "after:"+string(trig)); err != nil {
		inst.recordTransitionError(trig, "hook_error")
		return err
	}

	if newLeaf == StateFault {
		inst.tasks.cancelAll()
	}

	if inst.onEvent != nil {
		inst.onEvent(Event{From: from, To: newLeaf, Trigger: trig, Timestamp: ts})
	}
	return nil
}

// recordTransitionError increments FSMTransitionErrors for a rejected
// trigger, labeled by the rejection reason (not_allowed, recovery_denied,
// guard_failed, guard_error, hook_error).
func (inst *Instance) recordTransitionError(trig Trigger, reason string) {
	metrics.Get().FSMTransitionErrors.WithLabelValues(inst.id, string(trig), reason).Inc()
}

func recoverLeaf(trig Trigger) (State, bool) {
	const prefix = "recover__"
	s := string(trig)
	if len(s) <= len(prefix) || s[:len(prefix)] != prefix {
		return "", false
	}
	return State(s[len(prefix):]), true
}

// recordHookError keeps the 20 most recent hook failures on the instance
// for diagnostics. No accessor or RPC exposes them; GetState reports only
// the current and last-recoverable states.
func (inst *Instance) recordHookError(site string, err error) {
	inst.hookErrs = append(inst.hookErrs, hookError{Site: site, Err: err})
	if len(inst.hookErrs) > 20 {
		inst.hookErrs = inst.hookErrs[len(inst.hookErrs)-20:]
	}
}

// Spawn launches fn as a task tracked by this instance: it will be
// cancelled on fault entry, on Stop, or on an explicit CancelTasks. Hook
// bodies call this instead of starting a bare goroutine so background work
// never outlives the instance or survives a fault.
func (inst *Instance) Spawn(ctx context.Context, fn func(ctx context.Context)) {
	inst.trackedSpawn(ctx, fn)
}

// trackedSpawn spawns fn, tracks the resulting task, and arranges for it to
// be forgotten once it finishes on its own — spec.md §4.2's "forget(handle)
// ... must be called automatically when a task finishes" — in addition to
// the explicit forgetting runExitHooks and SetTimeout already do when a
// timeout is superseded before it ever fires.
func (inst *Instance) trackedSpawn(ctx context.Context, fn func(ctx context.Context)) *clock.Task {
	task := inst.clk.Spawn(ctx, fn)
	inst.tasks.track(task)
	go func() {
		_ = task.Wait()
		inst.tasks.forget(task)
	}()
	return task
}

// SetTimeout arms a one-shot tracked task that, after d, fires trig iff
// the instance is still in exactly owner at that moment — spec.md §4.4's
// `set_timeout(state, seconds, trigger_producer)`. It replaces any
// previous timeout armed for owner (the invariant `|state_timeouts[s]| <=
// 1`): the old task is cancelled and forgotten first. Unlike a state's
// declarative auto-timeout (OnEnterWithTimeout), this is for ad hoc use
// from within a hook body that wants to arm or re-arm a timeout for a
// state other than (or in addition to) the one it was called for. Must
// be called on the owning goroutine (i.e. from within a hook or guard).
func (inst *Instance) SetTimeout(owner State, d time.Duration, trig Trigger) {
	if old, ok := inst.activeTimeouts[owner]; ok {
		old.Cancel()
		inst.tasks.forget(old)
	}
	task := inst.trackedSpawn(context.Background(), func(ctx context.Context) {
		if err := inst.clk.Sleep(ctx, d); err != nil {
			return
		}
		inst.fireIfStillIn(owner, trig)
	})
	inst.activeTimeouts[owner] = task
}

// CancelTasks cancels every task this instance has spawned, without
// otherwise affecting its current state.
func (inst *Instance) CancelTasks() {
	inst.tasks.cancelAll()
}

// Stop cancels all tracked tasks and terminates the owning goroutine. The
// instance cannot be used afterward.
func (inst *Instance) Stop() {
	inst.stopMu.Lock()
	if inst.stopped {
		inst.stopMu.Unlock()
		return
	}
	inst.stopped = true
	inst.stopMu.Unlock()
	inst.tasks.cancelAll()
	metrics.Get().FSMInstancesGauge.WithLabelValues(inst.id).Dec()
	close(inst.stopCh)
}

// CurrentState returns the instance's current leaf state. Safe to call
// concurrently: it does not mutate, but for a value guaranteed consistent
// with a specific sequence of triggers, prefer Snapshot via Trigger's
// return or a GetState RPC round-trip.
func (inst *Instance) CurrentState() State {
	result := make(chan State, 1)
	select {
	case inst.cmdCh <- func() { result <- inst.current }:
		return <-result
	case <-inst.stopCh:
		return inst.current
	}
}

// Snapshot returns a consistent, externally safe copy of the instance's
// observable state.
func (inst *Instance) Snapshot() Snapshot {
	result := make(chan Snapshot, 1)
	cmd := func() {
		last, hasLast := inst.recovery.lastRecoverable()
		result <- Snapshot{
			State:             inst.current,
			Started:           inst.started,
			LastRecoverable:   last,
			HasRecoverable:    hasLast,
			AvailableTriggers: inst.def.graph.triggersAvailableFrom(inst.current),
		}
	}
	select {
	case inst.cmdCh <- cmd:
		return <-result
	case <-inst.stopCh:
		return Snapshot{State: inst.current}
	}
}

// Triggers returns every distinct trigger name declared on this instance's
// graph (including the distinguished and synthetic recover__ ones), for
// internal/rpcregistry's trigger-bundle generator to enumerate.
func (inst *Instance) Triggers() []Trigger { return inst.def.graph.allTriggers() }

// History returns the full bounded transition history, oldest first.
func (inst *Instance) History() []HistoryEntry { return inst.hist.snapshot() }

// LastN returns up to the n most recent transition history entries, oldest
// first.
func (inst *Instance) LastN(n int) []HistoryEntry { return inst.hist.lastN(n) }

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
