package fsm

// recovery tracks the last non-distinguished leaf the instance occupied
// before entering fault, so a `recover__<leaf>` trigger fired from `ready`
// can be validated against it when enableLastStateRecovery is set — spec.md
// §4.4 "recovery" design note. Only the synthetic-trigger convention is
// implemented; there is no separate manual recovery-hook API (SPEC_FULL.md
// §11 decision 1).
type recoveryTracker struct {
	enabled bool
	last    State
	hasLast bool
}

func newRecoveryTracker(enabled bool) *recoveryTracker {
	return &recoveryTracker{enabled: enabled}
}

// seed primes the tracker with a leaf recovered from outside the instance
// (e.g. a previous instance's last_recoverable_state, supplied via
// WithRecoveredState at construction). Like observe, seed applies even
// when recovery is disabled, so Snapshot still reports it; disabled
// recovery only affects whether Start() and recover__ triggers honor it.
func (r *recoveryTracker) seed(leaf State) {
	r.last = leaf
	r.hasLast = true
}

// shouldRecover reports the leaf Start() should recover into instead of
// firing the plain `start` trigger: recovery must be enabled and a leaf
// must have been observed or seeded.
func (r *recoveryTracker) shouldRecover() (State, bool) {
	if !r.enabled {
		return "", false
	}
	return r.lastRecoverable()
}

// observe is called after every committed transition with the instance's
// new leaf state. last_recoverable_state tracking itself is unconditional
// (spec.md §3: set whenever the FSM enters a leaf other than ready or
// fault) — enabled only gates entering ready clears it (spec.md §4.4 "On
// entry into ready with recovery_enabled=false, last_recoverable_state is
// cleared") and whether recover__ triggers are honored (see allows).
func (r *recoveryTracker) observe(leaf State) {
	if leaf == StateFault {
		return
	}
	if leaf == StateReady {
		if !r.enabled {
			r.last = ""
			r.hasLast = false
		}
		return
	}
	r.last = leaf
	r.hasLast = true
}

// lastRecoverable returns the most recent non-distinguished leaf observed,
// if any.
func (r *recoveryTracker) lastRecoverable() (State, bool) {
	return r.last, r.hasLast
}

// allows reports whether firing RecoverTrigger(leaf) from ready should be
// permitted. When tracking is disabled every recover__ trigger the graph
// wired is allowed unconditionally (the graph already restricts leaf to one
// of the declared leaves); when enabled, only the actual last-recoverable
// leaf may be targeted.
func (r *recoveryTracker) allows(leaf State) bool {
	if !r.enabled {
		return true
	}
	last, ok := r.lastRecoverable()
	return ok && last == leaf
}
