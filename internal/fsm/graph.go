package fsm

import "fmt"

// autoTimeoutSpec is the (seconds, trigger) pair carried by an enter hook
// registered via Builder.OnEnterWithTimeout — spec.md §4.4 "auto-timeout"
// design note.
type autoTimeoutSpec struct {
	seconds float64
	trigger TriggerProducer
}

// node is the graph's internal representation of one state. Parent/child
// pointers are resolved by name once at build time so resolve() and the
// enter/exit path computation never walk the original StateSpec tree.
type node struct {
	name     State
	parent   State
	hasParent bool
	children []State
	initial  State

	enterHooks []HookFunc
	exitHooks  []HookFunc
	autoTimeout *autoTimeoutSpec // at most one, armed after all enter hooks succeed
}

func (n *node) isLeaf() bool { return len(n.children) == 0 }

// resolvedTransition is what graph.resolve returns on success.
type resolvedTransition struct {
	trigger     Trigger
	source      State
	destination State
	guard       GuardFunc
	before      HookFunc
	after       HookFunc
}

// edgeKey is the lookup-table key of a fully concrete (no wildcard) edge:
// its (source, trigger) pair.
type edgeKey struct {
	source  State
	trigger Trigger
}

// Graph is the static hierarchical state/transition model: immutable once
// built, safe for concurrent reads from multiple Instance goroutines (every
// Instance created from one Definition shares its Graph, and none mutates
// it after Build).
type Graph struct {
	nodes map[State]*node
	order []State // declaration order, for deterministic iteration in tests/docs

	edges map[edgeKey]*resolvedTransition

	// triggersFrom caches, for each concrete state, the set of trigger
	// names whose resolved source is that state or an ancestor of it —
	// spec.md §4.3 triggers_available_from.
	triggersFrom map[State][]Trigger

	// triggerOrder lists every distinct trigger name declared on any edge
	// (including the distinguished and synthetic recover__ ones), in the
	// order first seen, for internal/rpcregistry's trigger-bundle
	// generator (spec.md §4.7) to enumerate without a caller-supplied list.
	triggerOrder []Trigger
	triggerSeen  map[Trigger]bool

	startState State // destination of the `start` trigger from `ready`
}

// buildGraph constructs the immutable Graph from root specs, a start
// state, and a transition list (which may include wildcard sources). It
// rejects unknown state names and expands `*` before returning; trigger
// names are not validated, since a trigger exists by being declared on a
// transition.
func buildGraph(roots []StateSpec, startState string, transitions []TransitionSpec) (*Graph, error) {
	g := &Graph{
		nodes:       make(map[State]*node),
		edges:       make(map[edgeKey]*resolvedTransition),
		triggerSeen: make(map[Trigger]bool),
	}

	for _, r := range roots {
		if err := g.addSpec(r, "", false); err != nil {
			return nil, err
		}
	}

	// Distinguished leaves always present.
	if _, exists := g.nodes[StateReady]; exists {
		return nil, fmt.Errorf("fsm: state name %q is reserved", StateReady)
	}
	if _, exists := g.nodes[StateFault]; exists {
		return nil, fmt.Errorf("fsm: state name %q is reserved", StateFault)
	}
	g.nodes[StateReady] = &node{name: StateReady}
	g.nodes[StateFault] = &node{name: StateFault}
	g.order = append(g.order, StateReady, StateFault)

	if _, ok := g.nodes[State(startState)]; !ok {
		return nil, &ErrUnknownState{Name: startState}
	}
	g.startState = State(startState)

	allStates := make([]State, 0, len(g.nodes))
	for _, s := range g.order {
		allStates = append(allStates, s)
	}

	// User transitions, with wildcard expansion.
	for _, t := range transitions {
		if _, ok := g.nodes[State(t.Destination)]; !ok {
			return nil, &ErrUnknownState{Name: t.Destination}
		}
		if t.Source == "*" {
			for _, s := range allStates {
				if err := g.addEdge(s, t); err != nil {
					return nil, err
				}
			}
			continue
		}
		if _, ok := g.nodes[State(t.Source)]; !ok {
			return nil, &ErrUnknownState{Name: t.Source}
		}
		if err := g.addEdge(State(t.Source), t); err != nil {
			return nil, err
		}
	}

	// Distinguished triggers.
	for _, s := range allStates {
		if s == StateFault {
			continue
		}
		_ = g.addEdge(s, TransitionSpec{Trigger: TriggerToFault, Source: string(s), Destination: string(StateFault)})
	}
	_ = g.addEdge(StateFault, TransitionSpec{Trigger: TriggerReset, Source: string(StateFault), Destination: string(StateReady)})
	_ = g.addEdge(StateReady, TransitionSpec{Trigger: TriggerStart, Source: string(StateReady), Destination: startState})

	for _, leaf := range g.leavesLocked() {
		if leaf == StateReady || leaf == StateFault {
			continue
		}
		_ = g.addEdge(StateReady, TransitionSpec{
			Trigger:     RecoverTrigger(leaf),
			Source:      string(StateReady),
			Destination: string(leaf),
		})
	}

	g.computeTriggersFrom(allStates)

	return g, nil
}

func (g *Graph) addSpec(spec StateSpec, parent State, hasParent bool) error {
	name := State(spec.Name)
	if _, exists := g.nodes[name]; exists {
		return fmt.Errorf("fsm: duplicate state %q", spec.Name)
	}
	n := &node{name: name, parent: parent, hasParent: hasParent}
	if len(spec.Children) > 0 {
		if spec.Initial == "" {
			return fmt.Errorf("fsm: composite state %q has no Initial child declared", spec.Name)
		}
		foundInitial := false
		for _, c := range spec.Children {
			n.children = append(n.children, State(c.Name))
			if c.Name == spec.Initial {
				foundInitial = true
			}
		}
		if !foundInitial {
			return fmt.Errorf("fsm: initial child %q of %q is not among its children", spec.Initial, spec.Name)
		}
		n.initial = State(spec.Initial)
	}
	g.nodes[name] = n
	g.order = append(g.order, name)

	for _, c := range spec.Children {
		if err := g.addSpec(c, name, true); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) addEdge(source State, t TransitionSpec) error {
	key := edgeKey{source: source, trigger: t.Trigger}
	if _, exists := g.edges[key]; exists {
		// Distinguished-trigger wiring runs after user transitions and must
		// not clobber a user-declared override for the same (source,
		// trigger) pair.
		return nil
	}
	g.edges[key] = &resolvedTransition{
		trigger:     t.Trigger,
		source:      source,
		destination: State(t.Destination),
		guard:       t.Guard,
		before:      t.Before,
		after:       t.After,
	}
	if !g.triggerSeen[t.Trigger] {
		g.triggerSeen[t.Trigger] = true
		g.triggerOrder = append(g.triggerOrder, t.Trigger)
	}
	return nil
}

// allTriggers returns every distinct trigger name declared on any edge of
// the graph, in first-declared order.
func (g *Graph) allTriggers() []Trigger {
	out := make([]Trigger, len(g.triggerOrder))
	copy(out, g.triggerOrder)
	return out
}

func (g *Graph) computeTriggersFrom(allStates []State) {
	g.triggersFrom = make(map[State][]Trigger, len(allStates))
	for _, s := range allStates {
		seen := make(map[Trigger]bool)
		var out []Trigger
		for cur, ok := s, true; ok; cur, ok = g.parentOf(cur) {
			for key := range g.edges {
				if key.source == cur && !seen[key.trigger] {
					seen[key.trigger] = true
					out = append(out, key.trigger)
				}
			}
		}
		g.triggersFrom[s] = out
	}
}

func (g *Graph) parentOf(s State) (State, bool) {
	n, ok := g.nodes[s]
	if !ok || !n.hasParent {
		return "", false
	}
	return n.parent, true
}

// leaves returns the set of leaf state names.
func (g *Graph) leaves() []State { return g.leavesLocked() }

func (g *Graph) leavesLocked() []State {
	var out []State
	for _, s := range g.order {
		if g.nodes[s].isLeaf() {
			out = append(out, s)
		}
	}
	return out
}

// triggersAvailableFrom returns the set of trigger names whose resolved
// transitions have `state` (or an ancestor) as their source.
func (g *Graph) triggersAvailableFrom(state State) []Trigger {
	return g.triggersFrom[state]
}

// resolve looks up the transition for (trigger, currentState), walking up
// the ancestor chain so a trigger declared on a composite ancestor is
// reachable from any of its descendant leaves.
func (g *Graph) resolve(trigger Trigger, current State) (*resolvedTransition, error) {
	for cur, ok := current, true; ok; cur, ok = g.parentOf(cur) {
		if rt, found := g.edges[edgeKey{source: cur, trigger: trigger}]; found {
			return rt, nil
		}
	}
	return nil, &ErrNotAllowed{Trigger: trigger, CurrentState: current, AllowedTrigger: g.triggersAvailableFrom(current)}
}

// initialLeafChain descends from `from` through initial children until it
// reaches a leaf, returning the full chain including `from` itself.
func (g *Graph) initialLeafChain(from State) []State {
	chain := []State{from}
	cur := from
	for {
		n := g.nodes[cur]
		if n.isLeaf() {
			return chain
		}
		cur = n.initial
		chain = append(chain, cur)
	}
}

// ancestors returns [state, parent, grandparent, ...] up to the root.
func (g *Graph) ancestors(state State) []State {
	var out []State
	for cur, ok := state, true; ok; cur, ok = g.parentOf(cur) {
		out = append(out, cur)
	}
	return out
}

// exitEnterPath computes, for a transition from the current leaf to a
// (possibly composite) destination, the ordered list of states to exit
// (outermost last) and the ordered list of states to enter (outermost
// first), per spec.md §4.4 steps 4–6.
func (g *Graph) exitEnterPath(fromLeaf State, to State) (exitPath []State, enterPath []State, newLeaf State) {
	fromAncestors := g.ancestors(fromLeaf) // leaf..root
	toChain := g.initialLeafChain(to)       // to..leaf (to is already the entered node chain start)
	toAncestors := g.ancestors(to)          // to..root

	toAncestorSet := make(map[State]bool, len(toAncestors))
	for _, s := range toAncestors {
		toAncestorSet[s] = true
	}

	// Exit every ancestor of fromLeaf (inclusive) that is not an ancestor
	// of the destination, innermost (fromLeaf) first, outermost last.
	exited := make(map[State]bool, len(fromAncestors))
	for _, s := range fromAncestors {
		if toAncestorSet[s] {
			break // reached the lowest common ancestor; stop exiting
		}
		exitPath = append(exitPath, s)
		exited[s] = true
	}

	// Enter every node from the destination's ancestors and chain that was
	// not already active, outermost first. "Already active" means it is an
	// ancestor of fromLeaf that we did not exit.
	active := make(map[State]bool, len(fromAncestors))
	for _, s := range fromAncestors {
		if !exited[s] {
			active[s] = true
		}
	}
	// The destination's inactive ancestors (toAncestors[1:], root last)
	// are entered first, root first.
	for i := len(toAncestors) - 1; i >= 1; i-- {
		if !active[toAncestors[i]] {
			enterPath = append(enterPath, toAncestors[i])
		}
	}
	// toChain is already ordered outermost (`to`) first, innermost (leaf)
	// last, so filtering in place preserves the "outermost first" order
	// spec.md §4.4 step 6 requires.
	for _, s := range toChain {
		if active[s] {
			continue
		}
		enterPath = append(enterPath, s)
	}

	newLeaf = toChain[len(toChain)-1]
	return exitPath, enterPath, newLeaf
}
